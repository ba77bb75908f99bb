package tenant

import "errors"

var (
	// ErrMissingContext is returned when no tenant identity is bound where one is required.
	ErrMissingContext = errors.New("tenant: no identity bound to context")

	// ErrContextMismatch is returned when a declared tenant differs from the active one.
	ErrContextMismatch = errors.New("tenant: declared tenant does not match active context")

	// ErrInvalidID is returned for malformed or nil tenant identifiers.
	ErrInvalidID = errors.New("tenant: invalid identifier")

	// ErrEmptyStack is returned by Pop when there is nothing to pop.
	ErrEmptyStack = errors.New("tenant: context stack is empty")

	// ErrUnauthenticated is returned when no usable credential accompanies a request.
	ErrUnauthenticated = errors.New("tenant: unauthenticated")
)
