package session

import "moff.io/crowdfund/internal/metadata"

type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	// PhaseError is entered when a reconnection triggered by an account change
	// fails for a reason user action alone cannot fix. Nothing is bound.
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of the session. Account and Contract are set only in
// PhaseConnected.
type State struct {
	Phase    Phase
	Account  string
	Contract *metadata.Contract
	// Err is the failure of the last connection attempt, if it failed.
	Err error
}

func (s State) Connected() bool { return s.Phase == PhaseConnected }

func (s State) CanConnect() bool {
	return s.Phase == PhaseDisconnected || s.Phase == PhaseError
}

func (s State) CanDisconnect() bool {
	return s.Phase == PhaseConnecting || s.Phase == PhaseConnected
}
