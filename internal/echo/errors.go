package echo

import "fmt"

// ProtocolError describes a request the server refused to serve.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

// TransitionError is returned for a connection state change that skips a
// state or leaves Closed.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid connection transition %s -> %s", e.From, e.To)
}
