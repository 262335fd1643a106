package echo

// State is the lifecycle state of one WebSocket connection.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// canMoveTo reports whether to directly follows s. A failed handshake
// moves from Connecting straight to Closed.
func (s State) canMoveTo(to State) bool {
	if s == StateConnecting && to == StateClosed {
		return true
	}
	return s != StateClosed && to == s+1
}

// StateChangeFunc observes connection state changes.
type StateChangeFunc func(connID string, from, to State)
