package passing

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which variant a Message carries.
type Kind uint8

// Message kinds.
const (
	KindPassing Kind = iota + 1
	KindStatus
)

// String returns the kind name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindPassing:
		return "passing"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Event is a connectivity status change of the timing source.
type Event string

// Connectivity events.
const (
	EventConnected    Event = "connected"
	EventDisconnected Event = "disconnected"
)

// Message is the unit distributed by the hub: either a passing or a status event.
//
// Messages are plain values. Each subscriber receives its own copy.
type Message struct {
	Kind    Kind
	Passing Passing
	Event   Event
}

// NewPassingMessage wraps p in a passing message.
func NewPassingMessage(p Passing) Message {
	return Message{Kind: KindPassing, Passing: p}
}

// NewStatusMessage wraps e in a status message.
func NewStatusMessage(e Event) Message {
	return Message{Kind: KindStatus, Event: e}
}

// IsStatus reports whether m carries a connectivity event.
func (m Message) IsStatus() bool {
	return m.Kind == KindStatus
}

type statusJSON struct {
	Event Event `json:"event"`
}

// MarshalJSON encodes a passing as the bare record and a status as {"event":...}.
func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case KindPassing:
		return json.Marshal(m.Passing)
	case KindStatus:
		return json.Marshal(statusJSON{Event: m.Event})
	default:
		return nil, fmt.Errorf("passing: cannot encode message of kind %d", m.Kind)
	}
}

// UnmarshalJSON reverses MarshalJSON. An object whose only key is "event"
// decodes as a status; anything else decodes as a passing.
func (m *Message) UnmarshalJSON(data []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}

	if raw, ok := keys["event"]; ok && len(keys) == 1 {
		var e Event
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		*m = NewStatusMessage(e)
		return nil
	}

	var p Passing
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = NewPassingMessage(p)
	return nil
}
