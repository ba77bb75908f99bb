package command

import "errors"

var (
	// ErrNilCommand is returned when Dispatch is called with a nil command.
	ErrNilCommand = errors.New("command: nil command")

	// ErrHandlerNotFound is returned when no handler is registered for a command.
	ErrHandlerNotFound = errors.New("command: no handler registered")

	// ErrHandlerExists is returned when a second handler is registered for the same command.
	ErrHandlerExists = errors.New("command: handler already registered")

	// ErrUnknownCommand is returned by the registry for names outside its whitelist.
	ErrUnknownCommand = errors.New("command: unknown command name")

	// ErrInvalidPayload is returned when a named command cannot be decoded.
	ErrInvalidPayload = errors.New("command: invalid payload")
)
