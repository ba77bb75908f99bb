package event_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantguard/pkg/event"
	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/queue"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

type seenBy struct {
	mu   sync.Mutex
	seen map[string][]tenant.ID
}

func (s *seenBy) add(name string, id tenant.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string][]tenant.ID)
	}
	s.seen[name] = append(s.seen[name], id)
}

func (s *seenBy) get(name string) []tenant.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tenant.ID(nil), s.seen[name]...)
}

func recorder(name, eventType string, seen *seenBy) event.Handler {
	return event.NewHandler(name, eventType, func(ctx context.Context, _ noteCreated, _ event.Metadata) error {
		id, err := tenant.Current(ctx)
		if err != nil {
			return err
		}
		seen.add(name, id)
		return nil
	})
}

func TestBus_Subscribe(t *testing.T) {
	t.Parallel()

	b := event.NewBus(nil)
	seen := &seenBy{}

	require.NoError(t, b.Subscribe(recorder("b", "note.created", seen), recorder("a", "note.created", seen)))
	assert.ErrorIs(t, b.Subscribe(recorder("a", "note.deleted", seen)), event.ErrHandlerExists)
	assert.ErrorIs(t, b.Subscribe(nil), event.ErrNilHandler)

	assert.Len(t, b.Handlers("note.created"), 2)
	assert.Empty(t, b.Handlers("note.deleted"))

	handlers := b.QueueHandlers()
	require.Len(t, handlers, 2)
	assert.Equal(t, "a", handlers[0].Name())
	assert.Equal(t, "b", handlers[1].Name())
}

func TestBus_JoinsTransaction(t *testing.T) {
	t.Parallel()

	var pub event.Publisher = event.NewBus(nil, event.WithOutbox())
	tp, ok := pub.(event.TxPublisher)
	require.True(t, ok)
	assert.True(t, tp.JoinsTransaction())
	assert.False(t, event.NewBus(nil).JoinsTransaction())
}

func TestBus_Publish(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	b := event.NewBus(enq)
	seen := &seenBy{}
	require.NoError(t, b.Subscribe(
		recorder("notes.index", "note.created", seen),
		recorder("notes.audit", "note.created", seen),
		recorder("notes.purge", "note.deleted", seen),
	))

	require.NoError(t, b.Publish(context.Background(), stamped(tenant.New())))

	pending := storage.Tasks(queue.TaskStatusPending)
	require.Len(t, pending, 2)
	names := []string{pending[0].Name, pending[1].Name}
	assert.ElementsMatch(t, []string{"notes.index", "notes.audit"}, names)
}

type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(context.Context, string, any, ...queue.EnqueueOption) (uuid.UUID, error) {
	return uuid.Nil, errors.New("queue down")
}

func TestBus_PublishErrors(t *testing.T) {
	t.Parallel()

	b := event.NewBus(failingEnqueuer{})
	require.NoError(t, b.Subscribe(recorder("notes.index", "note.created", &seenBy{})))
	assert.ErrorContains(t, b.Publish(context.Background(), stamped(tenant.New())), "queue down")
}

// Requests for two tenants emit events; the worker runs the handlers
// concurrently and each one must see only its own tenant.
func TestBus_EndToEnd(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	obs := &recordingObserver{}
	b := event.NewBus(enq, event.WithBusObserver(obs), event.WithBusLogger(logger.Discard()))
	seen := &seenBy{}
	require.NoError(t, b.Subscribe(recorder("notes.index", "note.created", seen)))

	emitter := newEmitter(t, event.NewMemoryStore(), b, obs)

	worker, err := queue.NewWorker(storage,
		queue.WithPollInterval(5*time.Millisecond),
		queue.WithMaxConcurrentTasks(4),
		queue.WithWorkerObserver(obs),
		queue.WithWorkerLogger(logger.Discard()),
	)
	require.NoError(t, err)
	require.NoError(t, worker.RegisterHandlers(b.QueueHandlers()...))

	a, bt := tenant.New(), tenant.New()
	const perTenant = 10
	for range perTenant {
		for _, id := range []tenant.ID{a, bt} {
			ctx, release, err := tenant.Enter(context.Background(), id)
			require.NoError(t, err)
			_, err = emitter.Emit(ctx, "note.created", noteCreated{})
			release()
			require.NoError(t, err)
		}
	}

	require.NoError(t, worker.Start(context.Background()))
	t.Cleanup(func() { _ = worker.Stop() })

	require.Eventually(t, func() bool { return len(seen.get("notes.index")) == 2*perTenant },
		5*time.Second, 5*time.Millisecond)

	counts := map[tenant.ID]int{}
	for _, id := range seen.get("notes.index") {
		counts[id]++
	}
	assert.Equal(t, map[tenant.ID]int{a: perTenant, bt: perTenant}, counts)
	assert.Zero(t, obs.leakCount("event:notes.index"))
	assert.Zero(t, obs.leakCount("task:notes.index"))
}

func TestBus_Replay(t *testing.T) {
	t.Parallel()

	store := event.NewMemoryStore()
	emitter := newEmitter(t, store, nil, nil)

	ids := []tenant.ID{tenant.New(), tenant.New(), tenant.New()}
	for _, id := range ids {
		_, err := emitter.Emit(enter(t, context.Background(), id), "note.created", noteCreated{})
		require.NoError(t, err)
	}

	t.Run("restores each stamp", func(t *testing.T) {
		t.Parallel()

		seen := &seenBy{}
		b := event.NewBus(nil)
		require.NoError(t, b.Subscribe(recorder("notes.index", "note.created", seen)))

		// The replaying process has its own ambient identity; it must not matter.
		ctx := enter(t, context.Background(), tenant.New())
		last, err := b.Replay(ctx, store, 0, 2)
		require.NoError(t, err)
		assert.EqualValues(t, 3, last)
		assert.Equal(t, ids, seen.get("notes.index"))
	})

	t.Run("resumes after a sequence", func(t *testing.T) {
		t.Parallel()

		seen := &seenBy{}
		b := event.NewBus(nil)
		require.NoError(t, b.Subscribe(recorder("notes.index", "note.created", seen)))

		last, err := b.Replay(context.Background(), store, 1, 0)
		require.NoError(t, err)
		assert.EqualValues(t, 3, last)
		assert.Equal(t, ids[1:], seen.get("notes.index"))
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		t.Parallel()

		calls := 0
		b := event.NewBus(nil)
		require.NoError(t, b.Subscribe(event.NewHandler("flaky", "note.created",
			func(context.Context, noteCreated, event.Metadata) error {
				calls++
				if calls == 2 {
					return errors.New("boom")
				}
				return nil
			})))

		last, err := b.Replay(context.Background(), store, 0, 10)
		require.ErrorContains(t, err, "sequence 2")
		assert.EqualValues(t, 1, last)
	})
}

func TestMemoryStore_Load(t *testing.T) {
	t.Parallel()

	store := event.NewMemoryStore()
	for range 5 {
		env := stamped(tenant.New())
		require.NoError(t, store.Append(context.Background(), &env))
	}

	page, err := store.Load(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.EqualValues(t, 2, page[0].Sequence)
	assert.EqualValues(t, 3, page[1].Sequence)

	page, err = store.Load(context.Background(), 4, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)

	page, err = store.Load(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}
