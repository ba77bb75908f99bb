package config

import "errors"

var (
	ErrParsingConfig = errors.New("config: failed to parse environment")
	ErrInvalidConfig = errors.New("config: validation failed")
	ErrNilPointer    = errors.New("config: nil pointer provided to loader")
	ErrLoadingEnv    = errors.New("config: failed to load env file")
)
