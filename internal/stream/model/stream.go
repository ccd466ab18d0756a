package model

import (
	"fmt"
	"strings"
)

// Direction tells capture and playback streams apart.
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
)

func (d Direction) String() string {
	if d == DirectionInput {
		return "input"
	}
	return "output"
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ParseDirection accepts "input"/"capture" and "output"/"playback".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input", "capture":
		return DirectionInput, nil
	case "output", "playback":
		return DirectionOutput, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// IOFlags carries the stream's I/O intent.
type IOFlags uint32

const (
	FlagFast IOFlags = 1 << iota
	FlagMmapNoIRQ
	FlagSpatializer
	FlagDirect
	FlagCompressOffload
	FlagRaw
)

var flagNames = []struct {
	flag IOFlags
	name string
}{
	{FlagFast, "fast"},
	{FlagMmapNoIRQ, "mmap_noirq"},
	{FlagSpatializer, "spatializer"},
	{FlagDirect, "direct"},
	{FlagCompressOffload, "compress_offload"},
	{FlagRaw, "raw"},
}

// ParseFlags converts flag names into a bit set.
func ParseFlags(names []string) (IOFlags, error) {
	var out IOFlags
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		found := false
		for _, f := range flagNames {
			if f.name == n {
				out |= f.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown io flag %q", n)
		}
	}
	return out, nil
}

// Has reports whether all bits of f are set.
func (fl IOFlags) Has(f IOFlags) bool {
	return fl&f == f
}

// LowLatency reports whether the worker should run with real-time priority.
func (fl IOFlags) LowLatency(dir Direction) bool {
	if dir == DirectionInput {
		return fl.Has(FlagFast)
	}
	return fl.Has(FlagFast) || fl.Has(FlagSpatializer)
}

func (fl IOFlags) String() string {
	var parts []string
	for _, f := range flagNames {
		if fl.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// DeviceType classifies an attached endpoint.
type DeviceType string

// DeviceNone is the placeholder for "nothing attached".
const DeviceNone DeviceType = ""

// Device is an endpoint a stream is routed to.
type Device struct {
	Type    DeviceType
	Address string
}

// Connected reports whether d represents an attached endpoint.
func (d Device) Connected() bool {
	return d.Type != DeviceNone
}

// AnyConnected reports whether at least one device in devs is attached.
func AnyConnected(devs []Device) bool {
	for _, d := range devs {
		if d.Connected() {
			return true
		}
	}
	return false
}

// TrackMetadata describes one source or sink using the stream.
type TrackMetadata struct {
	Usage       string   `yaml:"usage"`
	ContentType string   `yaml:"content_type"`
	Gain        float32  `yaml:"gain"`
	Tags        []string `yaml:"tags,omitempty"`
}

// Metadata is the set of tracks currently attached to a stream.
type Metadata struct {
	Tracks []TrackMetadata `yaml:"tracks"`
}

// MmapDescriptor describes a shared-memory data region.
type MmapDescriptor struct {
	Fd              int
	SizeBytes       int
	BurstSizeFrames int
	Flags           uint32
}
