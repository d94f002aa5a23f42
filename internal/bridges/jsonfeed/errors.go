package jsonfeed

import "errors"

var (
	// ErrInvalidOptions is returned by NewListener when a required dependency is missing.
	ErrInvalidOptions = errors.New("jsonfeed: invalid options")

	// ErrBindFailed is returned by Run when the listen address cannot be bound.
	ErrBindFailed = errors.New("jsonfeed: bind failed")

	// ErrAlreadyStarted is returned by every Run call after the first.
	ErrAlreadyStarted = errors.New("jsonfeed: listener already started")
)
