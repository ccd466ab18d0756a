// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package model defines the wire vocabulary shared by stream clients and the
// stream worker: commands, replies, states and audio geometry.
package model

import (
	"fmt"
	"strings"
)

// Command is a request sent by the client to the stream worker. The set of
// implementations is closed; workers dispatch with a type switch.
type Command interface {
	isCommand()
}

// Exit stops the worker. A cookie matching the stream's internal cookie XOR
// the worker thread id is an internal shutdown; zero is a diagnostic exit
// that is answered before the loop ends.
type Exit struct{ Cookie int32 }

// GetStatus asks for a reply without changing state.
type GetStatus struct{}

// Start moves the stream out of standby or resumes a paused stream.
type Start struct{}

// Burst transfers up to ByteCount bytes through the data queue.
type Burst struct{ ByteCount int32 }

// Drain requests that buffered audio be played out (output) or that the
// capture be wound down (input).
type Drain struct{ Mode DrainMode }

// Standby releases the hardware.
type Standby struct{}

// Pause suspends an active transfer.
type Pause struct{}

// Flush discards buffered audio of a paused stream.
type Flush struct{}

func (Exit) isCommand()      {}
func (GetStatus) isCommand() {}
func (Start) isCommand()     {}
func (Burst) isCommand()     {}
func (Drain) isCommand()     {}
func (Standby) isCommand()   {}
func (Pause) isCommand()     {}
func (Flush) isCommand()     {}

// CommandKind names a command variant independent of its payload.
type CommandKind string

const (
	CmdExit      CommandKind = "exit"
	CmdGetStatus CommandKind = "getStatus"
	CmdStart     CommandKind = "start"
	CmdBurst     CommandKind = "burst"
	CmdDrain     CommandKind = "drain"
	CmdStandby   CommandKind = "standby"
	CmdPause     CommandKind = "pause"
	CmdFlush     CommandKind = "flush"
)

// AllCommandKinds lists every variant in protocol order.
var AllCommandKinds = []CommandKind{
	CmdExit, CmdGetStatus, CmdStart, CmdBurst, CmdDrain, CmdStandby, CmdPause, CmdFlush,
}

// Kind returns the variant name of cmd.
func Kind(cmd Command) CommandKind {
	switch cmd.(type) {
	case Exit:
		return CmdExit
	case GetStatus:
		return CmdGetStatus
	case Start:
		return CmdStart
	case Burst:
		return CmdBurst
	case Drain:
		return CmdDrain
	case Standby:
		return CmdStandby
	case Pause:
		return CmdPause
	case Flush:
		return CmdFlush
	default:
		panic(fmt.Sprintf("model: unknown command %T", cmd))
	}
}

// DrainMode selects drain behaviour.
type DrainMode int

const (
	DrainUnspecified DrainMode = iota
	DrainAll
	DrainEarlyNotify
)

func (m DrainMode) String() string {
	switch m {
	case DrainUnspecified:
		return "UNSPECIFIED"
	case DrainAll:
		return "ALL"
	case DrainEarlyNotify:
		return "EARLY_NOTIFY"
	default:
		return fmt.Sprintf("DrainMode(%d)", int(m))
	}
}

// ParseDrainMode accepts "all" and "early_notify" case-insensitively.
func ParseDrainMode(s string) (DrainMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return DrainAll, nil
	case "early_notify", "early-notify":
		return DrainEarlyNotify, nil
	}
	return DrainUnspecified, fmt.Errorf("unknown drain mode %q", s)
}
