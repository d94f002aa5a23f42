package decoder

import "errors"

// Domain errors for the decoder session.
var (
	// ErrInvalidConfig is returned by NewSession when a required dependency is missing.
	ErrInvalidConfig = errors.New("decoder: invalid configuration")

	// ErrConnectionFailed is returned when the device address cannot be
	// resolved or dialled.
	ErrConnectionFailed = errors.New("decoder: connection failed")

	// ErrHandshakeFailed is returned when the protocol setup commands cannot be written.
	ErrHandshakeFailed = errors.New("decoder: handshake failed")

	// ErrConnectionLost is returned when an established stream ends.
	ErrConnectionLost = errors.New("decoder: connection lost")
)
