package decoder

// SessionState is the phase of the decoder session.
type SessionState int32

// Session states.
const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateHandshaking
	StateStreaming
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}
