package tenant

import "sync"

// Stack holds the identities active for one unit of work, innermost last.
// A Stack must never be shared between concurrently running units of work;
// use Detach or WithStack to give each unit its own.
type Stack struct {
	mu     sync.Mutex
	frames []*Frame
}

// Frame is the guard for a single Push. Releasing it ends the scope it opened.
type Frame struct {
	id    ID
	depth int
	owner *Stack

	// guarded by owner.mu
	released bool
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// ID returns the identity held by the frame.
func (f *Frame) ID() ID { return f.id }

// Depth returns the 1-based position of the frame at the time it was pushed.
func (f *Frame) Depth() int { return f.depth }

// Release ends the frame's scope. It is safe to call more than once and after
// the frame has already been popped. Releasing a frame that is not on top
// leaves an orphan slot that is discarded once the frames above it go.
func (f *Frame) Release() {
	s := f.owner
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.released {
		return
	}
	f.released = true
	s.prune()
}

// Push makes id the active identity until the returned frame is released or popped.
func (s *Stack) Push(id ID) (*Frame, error) {
	if id.IsZero() {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f := &Frame{id: id, depth: len(s.frames) + 1, owner: s}
	s.frames = append(s.frames, f)
	return f, nil
}

// Peek returns the innermost live identity without removing it.
func (s *Stack) Peek() (ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune()
	if len(s.frames) == 0 {
		return Nil, false
	}
	return s.frames[len(s.frames)-1].id, true
}

// Current returns the innermost live identity or ErrMissingContext.
// It never falls back to a default.
func (s *Stack) Current() (ID, error) {
	id, ok := s.Peek()
	if !ok {
		return Nil, ErrMissingContext
	}
	return id, nil
}

// Pop removes exactly one live frame and returns its identity.
// Orphans uncovered by the pop are discarded with it.
func (s *Stack) Pop() (ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune()
	n := len(s.frames)
	if n == 0 {
		return Nil, ErrEmptyStack
	}

	top := s.frames[n-1]
	s.frames[n-1] = nil
	s.frames = s.frames[:n-1]
	top.released = true
	s.prune()

	return top.id, nil
}

// Depth reports how many frames currently occupy the stack, orphans included.
// A non-zero value at the end of a unit of work is a leak.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Reset drops every frame and returns how many of them were still live.
// Orphan slots left by released frames are dropped but not counted.
func (s *Stack) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, f := range s.frames {
		if !f.released {
			n++
		}
		f.released = true
	}
	s.frames = nil
	return n
}

// prune removes released frames from the top. Must be called with mu held.
func (s *Stack) prune() {
	n := len(s.frames)
	for n > 0 && s.frames[n-1].released {
		s.frames[n-1] = nil
		n--
	}
	if n == 0 {
		s.frames = nil
		return
	}
	s.frames = s.frames[:n]
}
