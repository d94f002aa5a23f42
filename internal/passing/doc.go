// Package passing defines the canonical passing record and the message
// envelope distributed to subscribers.
//
// A passing is one transponder crossing a timing loop. Two wire formats
// produce it:
//
//   - the decoder's native semicolon-delimited line protocol (LineNormalizer)
//   - the JSON-line ingestion protocol (JSONNormalizer)
//
// Both yield the same Passing value, whose seventeen fields are always
// strings and always present in the JSON encoding, empty when the source
// did not supply them.
//
// Message wraps either a Passing or a connectivity Event. On the wire a
// passing message is the bare Passing object and a status message is
// {"event":"connected"} or {"event":"disconnected"}.
package passing
