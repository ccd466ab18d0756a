// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package lifecycle holds the stream state machine as data: which command is
// accepted in which state, where it leads, and which edges asynchronous
// completions may take.
package lifecycle

import "github.com/ManuGH/audiostream/internal/stream/model"

// Transition is a single allowed command edge.
type Transition struct {
	From    model.State
	Command model.CommandKind
	To      model.State
	// Transient marks a destination that awaits asynchronous completion.
	Transient bool
}

// Decision records whether a command is accepted in a state and why not.
type Decision struct {
	Allowed bool
	Reason  string
}

var inputTransitions = []Transition{
	{From: model.StateStandby, Command: model.CmdStart, To: model.StateIdle},
	{From: model.StateDraining, Command: model.CmdStart, To: model.StateActive},

	{From: model.StateIdle, Command: model.CmdBurst, To: model.StateActive},
	{From: model.StateActive, Command: model.CmdBurst, To: model.StateActive},
	{From: model.StatePaused, Command: model.CmdBurst, To: model.StateActive},
	// The read is assumed to have consumed whatever the hardware still held.
	{From: model.StateDraining, Command: model.CmdBurst, To: model.StateStandby},

	{From: model.StateActive, Command: model.CmdDrain, To: model.StateDraining},
	{From: model.StateIdle, Command: model.CmdStandby, To: model.StateStandby},
	{From: model.StateActive, Command: model.CmdPause, To: model.StatePaused},
	{From: model.StatePaused, Command: model.CmdFlush, To: model.StateStandby},
}

// Output burst rows carry the synchronous destination; the worker moves to
// TRANSFERRING instead when the transfer is partial or completion is async.
var outputTransitions = []Transition{
	{From: model.StateStandby, Command: model.CmdStart, To: model.StateIdle},
	{From: model.StatePaused, Command: model.CmdStart, To: model.StateActive},
	{From: model.StateDrainPaused, Command: model.CmdStart, To: model.StateDraining, Transient: true},
	{From: model.StateTransferPaused, Command: model.CmdStart, To: model.StateTransferring, Transient: true},

	{From: model.StateStandby, Command: model.CmdBurst, To: model.StateActive},
	{From: model.StateIdle, Command: model.CmdBurst, To: model.StateActive},
	{From: model.StateActive, Command: model.CmdBurst, To: model.StateActive},
	{From: model.StatePaused, Command: model.CmdBurst, To: model.StateActive},
	{From: model.StateDraining, Command: model.CmdBurst, To: model.StateActive},
	{From: model.StateDrainPaused, Command: model.CmdBurst, To: model.StateActive},

	{From: model.StateActive, Command: model.CmdDrain, To: model.StateDraining, Transient: true},
	{From: model.StateTransferring, Command: model.CmdDrain, To: model.StateDraining, Transient: true},
	{From: model.StateTransferPaused, Command: model.CmdDrain, To: model.StateDrainPaused},

	{From: model.StateIdle, Command: model.CmdStandby, To: model.StateStandby},

	{From: model.StateActive, Command: model.CmdPause, To: model.StatePaused},
	{From: model.StateDraining, Command: model.CmdPause, To: model.StateDrainPaused},
	{From: model.StateTransferring, Command: model.CmdPause, To: model.StateTransferPaused},

	{From: model.StatePaused, Command: model.CmdFlush, To: model.StateIdle},
	{From: model.StateDrainPaused, Command: model.CmdFlush, To: model.StateIdle},
	{From: model.StateTransferPaused, Command: model.CmdFlush, To: model.StateIdle},
}

// Edge is a state change caused by something other than a command table row.
type Edge struct {
	From  model.State
	To    model.State
	Cause string
}

const (
	CauseBurst    = "burst"
	CauseDrain    = "drain"
	CauseCallback = "callback"
	CauseDeadline = "deadline"
)

// outputEdges lists the refinements of command rows and the completions
// delivered by driver callbacks or transient deadlines.
var outputEdges = []Edge{
	{From: model.StateStandby, To: model.StateTransferring, Cause: CauseBurst},
	{From: model.StateIdle, To: model.StateTransferring, Cause: CauseBurst},
	{From: model.StateActive, To: model.StateTransferring, Cause: CauseBurst},
	{From: model.StatePaused, To: model.StateTransferring, Cause: CauseBurst},
	{From: model.StateDraining, To: model.StateTransferring, Cause: CauseBurst},
	{From: model.StateDrainPaused, To: model.StateTransferring, Cause: CauseBurst},

	{From: model.StateActive, To: model.StateIdle, Cause: CauseDrain},

	{From: model.StateTransferring, To: model.StateActive, Cause: CauseCallback},
	{From: model.StateDraining, To: model.StateIdle, Cause: CauseCallback},
	{From: model.StateDraining, To: model.StateTransferring, Cause: CauseCallback},
	{From: model.StateDrainPaused, To: model.StatePaused, Cause: CauseCallback},
	{From: model.StateDrainPaused, To: model.StateTransferPaused, Cause: CauseCallback},

	{From: model.StateTransferring, To: model.StateActive, Cause: CauseDeadline},
	{From: model.StateDraining, To: model.StateIdle, Cause: CauseDeadline},
}

func tableFor(dir model.Direction) []Transition {
	if dir == model.DirectionInput {
		return inputTransitions
	}
	return outputTransitions
}

// Transitions returns a copy of the command table for dir.
func Transitions(dir model.Direction) []Transition {
	t := tableFor(dir)
	out := make([]Transition, len(t))
	copy(out, t)
	return out
}

// TransitionFor finds the command edge leaving from.
func TransitionFor(dir model.Direction, from model.State, cmd model.CommandKind) (Transition, bool) {
	for _, tr := range tableFor(dir) {
		if tr.From == from && tr.Command == cmd {
			return tr, true
		}
	}
	return Transition{}, false
}

// CanMove reports whether the worker may change state from one value to
// another. ERROR and CLOSED are reachable from anywhere; nothing leaves them
// except closing.
func CanMove(dir model.Direction, from, to model.State) bool {
	if from == to {
		return true
	}
	if to == model.StateError || to == model.StateClosed {
		return from != model.StateClosed
	}
	if from == model.StateError || from == model.StateClosed {
		return false
	}
	for _, tr := range tableFor(dir) {
		if tr.From == from && tr.To == to {
			return true
		}
	}
	if dir == model.DirectionOutput {
		for _, e := range outputEdges {
			if e.From == from && e.To == to {
				return true
			}
		}
	}
	return false
}
