// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/ManuGH/audiostream/internal/stream/model"

const (
	ForbiddenErrorSticky      = "error_sticky"
	ForbiddenClosed           = "closed"
	ForbiddenUnknownState     = "unknown_state"
	ForbiddenRequiresStandby  = "requires_standby_or_paused"
	ForbiddenRequiresStarted  = "requires_started"
	ForbiddenTransferPending  = "transfer_pending"
	ForbiddenRequiresActive   = "requires_active"
	ForbiddenRequiresIdle     = "requires_idle"
	ForbiddenRequiresPaused   = "requires_paused"
	ForbiddenAlreadyInState   = "already_in_state"
	ForbiddenUnsupportedInput = "unsupported_for_input"
)

func allowed() Decision        { return Decision{Allowed: true} }
func forbid(r string) Decision { return Decision{Allowed: false, Reason: r} }

// DecisionFor tells whether cmd is accepted in state from. The boolean is
// false only for states dir never reaches.
func DecisionFor(dir model.Direction, from model.State, cmd model.CommandKind) (Decision, bool) {
	if from == model.StateClosed {
		return forbid(ForbiddenClosed), true
	}
	if !reachable(dir, from) {
		return forbid(ForbiddenUnknownState), false
	}
	if cmd == model.CmdExit || cmd == model.CmdGetStatus {
		return allowed(), true
	}
	if from == model.StateError {
		return forbid(ForbiddenErrorSticky), true
	}
	if _, ok := TransitionFor(dir, from, cmd); ok {
		return allowed(), true
	}
	return forbid(reasonFor(dir, from, cmd)), true
}

// ForbiddenReason documents why cmd is rejected in from, or "" if accepted.
func ForbiddenReason(dir model.Direction, from model.State, cmd model.CommandKind) string {
	d, _ := DecisionFor(dir, from, cmd)
	if d.Allowed {
		return ""
	}
	return d.Reason
}

func reasonFor(dir model.Direction, from model.State, cmd model.CommandKind) string {
	switch cmd {
	case model.CmdStart:
		if from == model.StateIdle || from == model.StateActive {
			return ForbiddenAlreadyInState
		}
		return ForbiddenRequiresStandby
	case model.CmdBurst:
		if from == model.StateTransferring || from == model.StateTransferPaused {
			return ForbiddenTransferPending
		}
		return ForbiddenRequiresStarted
	case model.CmdDrain, model.CmdPause:
		if dir == model.DirectionInput && from == model.StateDraining && cmd == model.CmdPause {
			return ForbiddenUnsupportedInput
		}
		return ForbiddenRequiresActive
	case model.CmdStandby:
		if from == model.StateStandby {
			return ForbiddenAlreadyInState
		}
		return ForbiddenRequiresIdle
	case model.CmdFlush:
		return ForbiddenRequiresPaused
	}
	return ForbiddenUnknownState
}

func reachable(dir model.Direction, s model.State) bool {
	for _, st := range model.StatesFor(dir) {
		if st == s {
			return true
		}
	}
	return false
}
