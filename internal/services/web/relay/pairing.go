package relay

import (
	"fmt"
	"sync/atomic"
)

// State is the lifecycle stage of a pairing.
type State int32

const (
	StateConnecting State = iota
	StatePaired
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StatePaired:
		return "paired"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// allowedTransitions lists every legal edge. Connecting may go straight to
// Closed when authentication or the upstream dial fails.
var allowedTransitions = map[State][]State{
	StateConnecting: {StatePaired, StateClosed},
	StatePaired:     {StateClosing},
	StateClosing:    {StateClosed},
}

// Pairing is one inbound connection and, once paired, its upstream partner.
type Pairing struct {
	ID         string
	ClientAddr string
	Path       string
	UserID     string

	state atomic.Int32
}

func newPairing(pairingID, clientAddr, path string) *Pairing {
	return &Pairing{ID: pairingID, ClientAddr: clientAddr, Path: path}
}

// State reports the current stage.
func (p *Pairing) State() State {
	return State(p.state.Load())
}

// transition moves the pairing to next if the edge is legal from the
// current state.
func (p *Pairing) transition(next State) error {
	for {
		current := p.State()
		if !canTransition(current, next) {
			return fmt.Errorf("pairing %s: illegal transition %s -> %s", p.ID, current, next)
		}
		if p.state.CompareAndSwap(int32(current), int32(next)) {
			return nil
		}
	}
}

func canTransition(from, to State) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
