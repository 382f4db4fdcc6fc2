// Package wake implements the Wake Protocol (§4.2): bringing the remote
// Processing Worker from asleep/off to serving, and verifying readiness
// before the Coordinator dispatches work to it.
package wake

import (
	"github.com/rs/zerolog"
)

// State is the remote worker's lifecycle as observed by the Coordinator.
type State int

const (
	StateUnknown State = iota
	StateProbing
	StateAwake
	StateReady
	StateUnreachable
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateProbing:
		return "probing"
	case StateAwake:
		return "awake"
	case StateReady:
		return "ready"
	case StateUnreachable:
		return "unreachable"
	default:
		return "invalid"
	}
}

// Machine tracks wake-protocol state and logs every transition at Info
// level with from/to/reason fields, so a run's wake timeline is
// reconstructable from logs alone.
type Machine struct {
	state State
	log   zerolog.Logger
}

// NewMachine starts a Machine in StateUnknown.
func NewMachine(log zerolog.Logger) *Machine {
	return &Machine{state: StateUnknown, log: log}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// transition moves to next, logging the change unless it is a no-op.
func (m *Machine) transition(next State, reason string) {
	if next == m.state {
		return
	}
	m.log.Info().
		Str("from", m.state.String()).
		Str("to", next.String()).
		Str("reason", reason).
		Msg("wake: state transition")
	m.state = next
}
