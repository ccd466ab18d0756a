// Package speaker is a playback driver for the host's default audio output.
// It is only functional in binaries built with the oto tag; other builds get
// a driver whose Init fails with ErrUnavailable.
package speaker

import (
	"errors"

	"github.com/ManuGH/audiostream/internal/stream/model"
)

// ErrUnavailable is returned by Init when the binary was built without
// audio output support.
var ErrUnavailable = errors.New("speaker: built without audio output support (rebuild with -tags oto)")

// ErrUnsupportedFormat is returned for encodings the audio backend can not
// play.
var ErrUnsupportedFormat = errors.New("speaker: unsupported encoding")

// Config describes the output stream.
type Config struct {
	Format model.AudioFormat
	// BufferFrames sizes the backend buffer. Zero keeps the backend default.
	BufferFrames int
}
