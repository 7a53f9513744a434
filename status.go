package tether

import "fmt"

// State is the connection state of the Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateUnreachable
)

var stateNames = [...]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateUnreachable:  "unreachable",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// ConnectionStatus is the externally visible connection status. Attempt and
// MaxAttempts are meaningful while Connecting. Err carries the terminal
// reason while Unreachable, and the drop reason on an unexpected
// disconnect.
type ConnectionStatus struct {
	State       State
	Attempt     int
	MaxAttempts int
	Err         error
}

func (s ConnectionStatus) String() string {
	switch s.State {
	case StateConnecting:
		return fmt.Sprintf("connecting (attempt %d/%d)", s.Attempt, s.MaxAttempts)
	case StateUnreachable:
		return fmt.Sprintf("unreachable: %v", s.Err)
	default:
		return s.State.String()
	}
}
