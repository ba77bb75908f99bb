package event

import "errors"

var (
	ErrNilHandler       = errors.New("event: handler cannot be nil")
	ErrHandlerExists    = errors.New("event: handler already subscribed")
	ErrEmptyType        = errors.New("event: type is required")
	ErrInvalidPayload   = errors.New("event: invalid payload")
	ErrUnexpectedType   = errors.New("event: envelope type does not match handler")
	ErrPublishFailed    = errors.New("event: publish failed")
	ErrStoreUnavailable = errors.New("event: store is required")
)
