package model

import (
	"fmt"
	"strings"
)

// Encoding identifies the sample representation.
type Encoding string

const (
	EncodingPCM16    Encoding = "pcm_16"
	EncodingPCM24    Encoding = "pcm_24_packed"
	EncodingPCM32    Encoding = "pcm_32"
	EncodingPCMFloat Encoding = "pcm_float"
	EncodingMP3      Encoding = "mp3"
	EncodingAAC      Encoding = "aac"
	EncodingOpus     Encoding = "opus"
)

// BytesPerSample returns the size of one PCM sample, or 0 for compressed
// encodings.
func (e Encoding) BytesPerSample() int {
	switch e {
	case EncodingPCM16:
		return 2
	case EncodingPCM24:
		return 3
	case EncodingPCM32, EncodingPCMFloat:
		return 4
	default:
		return 0
	}
}

// IsPCM reports whether the encoding is linear PCM.
func (e Encoding) IsPCM() bool {
	return e.BytesPerSample() > 0
}

// ParseEncoding accepts the canonical names case-insensitively.
func ParseEncoding(s string) (Encoding, error) {
	e := Encoding(strings.ToLower(strings.TrimSpace(s)))
	switch e {
	case EncodingPCM16, EncodingPCM24, EncodingPCM32, EncodingPCMFloat,
		EncodingMP3, EncodingAAC, EncodingOpus:
		return e, nil
	}
	return "", fmt.Errorf("unknown encoding %q", s)
}

// AudioFormat describes the stream geometry.
type AudioFormat struct {
	SampleRate   int
	ChannelCount int
	Encoding     Encoding
}

// FrameSize returns bytes per frame. Compressed formats are byte streams and
// use a frame size of one.
func (f AudioFormat) FrameSize() int {
	bps := f.Encoding.BytesPerSample()
	if bps == 0 {
		return 1
	}
	ch := f.ChannelCount
	if ch < 1 {
		ch = 1
	}
	return bps * ch
}

// Validate checks that the format can be streamed.
func (f AudioFormat) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Encoding.IsPCM() && f.ChannelCount <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", f.ChannelCount)
	}
	if f.Encoding == "" {
		return fmt.Errorf("encoding is required")
	}
	return nil
}

func (f AudioFormat) String() string {
	return fmt.Sprintf("%s/%dHz/%dch", f.Encoding, f.SampleRate, f.ChannelCount)
}
