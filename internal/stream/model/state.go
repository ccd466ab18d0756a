package model

import "fmt"

// State is the externally visible lifecycle state of a stream.
type State int

const (
	StateStandby State = iota
	StateIdle
	StateActive
	StatePaused
	StateDraining
	StateDrainPaused
	StateTransferring
	StateTransferPaused
	StateError
	// StateClosed is entered after the worker exits. It is never reported
	// in a reply.
	StateClosed
)

var stateNames = map[State]string{
	StateStandby:        "STANDBY",
	StateIdle:           "IDLE",
	StateActive:         "ACTIVE",
	StatePaused:         "PAUSED",
	StateDraining:       "DRAINING",
	StateDrainPaused:    "DRAIN_PAUSED",
	StateTransferring:   "TRANSFERRING",
	StateTransferPaused: "TRANSFER_PAUSED",
	StateError:          "ERROR",
	StateClosed:         "CLOSED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InputStates are the states reachable by a capture stream.
var InputStates = []State{
	StateStandby, StateIdle, StateActive, StatePaused, StateDraining, StateError,
}

// OutputStates are the states reachable by a playback stream.
var OutputStates = []State{
	StateStandby, StateIdle, StateActive, StatePaused, StateDraining,
	StateDrainPaused, StateTransferring, StateTransferPaused, StateError,
}

// StatesFor returns the reachable states for dir.
func StatesFor(dir Direction) []State {
	if dir == DirectionInput {
		return InputStates
	}
	return OutputStates
}

// DrainState tracks an output drain in progress.
type DrainState int

const (
	DrainStateNone DrainState = iota
	// DrainStateEN is an early-notify drain that has not yet notified.
	DrainStateEN
	// DrainStateENSent is an early-notify drain whose first notification
	// went out.
	DrainStateENSent
	DrainStateAll
)

func (d DrainState) String() string {
	switch d {
	case DrainStateNone:
		return "NONE"
	case DrainStateEN:
		return "EN"
	case DrainStateENSent:
		return "EN_SENT"
	case DrainStateAll:
		return "ALL"
	default:
		return fmt.Sprintf("DrainState(%d)", int(d))
	}
}
