package model

import "fmt"

// Status is the protocol result code carried in a Reply.
type Status int32

const (
	StatusOK               Status = 0
	StatusBadValue         Status = -22
	StatusInvalidOperation Status = -38
	StatusNotEnoughData    Status = -61
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBadValue:
		return "BAD_VALUE"
	case StatusInvalidOperation:
		return "INVALID_OPERATION"
	case StatusNotEnoughData:
		return "NOT_ENOUGH_DATA"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// StatusError wraps a non-OK Status as an error.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return "stream status " + e.Status.String()
}

// Err returns nil for OK and a *StatusError otherwise.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return &StatusError{Status: s}
}

const (
	// Unknown marks a position that could not be determined.
	Unknown int64 = -1
	// LatencyUnknown marks a latency that could not be determined.
	LatencyUnknown int32 = -1
)

// Position pairs a frame count with the monotonic time it was observed at.
type Position struct {
	Frames int64
	TimeNs int64
}

// UnknownPosition is the sentinel position.
var UnknownPosition = Position{Frames: Unknown, TimeNs: Unknown}

// IsUnknown reports whether p carries the sentinel.
func (p Position) IsUnknown() bool {
	return p.Frames == Unknown
}

// Reply is the worker's answer to a Command.
type Reply struct {
	Status       Status
	State        State
	Observable   Position
	Hardware     Position
	LatencyMs    int32
	FmqByteCount int32
}

// NewReply returns the reply sent when a command is not processed: BAD_VALUE
// with every measurement unknown.
func NewReply() Reply {
	return Reply{
		Status:     StatusBadValue,
		Observable: UnknownPosition,
		Hardware:   UnknownPosition,
		LatencyMs:  LatencyUnknown,
	}
}
