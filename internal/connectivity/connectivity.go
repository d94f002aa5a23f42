// Package connectivity tracks whether the timing source is currently connected.
//
// The flag is shared between the ingestion side (decoder session or JSON
// listener), which writes it, and the HTTP status endpoint, which reads it.
package connectivity

import "sync/atomic"

// State is the connectivity flag seen by ingestion and status reporting.
type State interface {
	// IsConnected reports the current value.
	IsConnected() bool

	// SetConnected stores connected and returns the previous value.
	SetConnected(connected bool) (previous bool)
}

// Observer is notified after every SetConnected call on a Flag.
type Observer func(connected bool)

// Flag is an atomic State. The zero value is disconnected and ready to use.
type Flag struct {
	v        atomic.Bool
	observer Observer
}

// NewFlag creates a Flag that calls observe after each change request.
// observe may be nil.
func NewFlag(observe Observer) *Flag {
	return &Flag{observer: observe}
}

// IsConnected reports the current value.
func (f *Flag) IsConnected() bool {
	return f.v.Load()
}

// SetConnected atomically swaps the value and returns what it was.
func (f *Flag) SetConnected(connected bool) bool {
	prev := f.v.Swap(connected)
	if f.observer != nil {
		f.observer(connected)
	}
	return prev
}
