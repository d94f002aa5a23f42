package passing

import "errors"

// Normalisation errors.
//
// ErrNotPassing is not a failure: it marks lines (PING, acknowledgements,
// blank lines) that carry no passing and should be skipped silently.
var (
	// ErrNotPassing is returned for lines that are not passing records.
	ErrNotPassing = errors.New("passing: not a passing record")

	// ErrShortPassing is returned for a #P record with fewer than five fields.
	ErrShortPassing = errors.New("passing: record too short")

	// ErrMalformedJSON is returned when a JSON line does not have the expected shape.
	ErrMalformedJSON = errors.New("passing: malformed json")
)
