package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on stream spans.
const (
	StreamIDKey        = "stream.id"
	StreamDirectionKey = "stream.direction"
	StreamStateKey     = "stream.state"
	StreamMmapKey      = "stream.mmap"
	StreamFlagsKey     = "stream.flags"

	AudioSampleRateKey = "audio.sample_rate"
	AudioChannelsKey   = "audio.channels"
	AudioEncodingKey   = "audio.encoding"

	DriverKindKey = "driver.kind"
)

// StreamAttributes describes a stream on a span.
func StreamAttributes(id, direction string, mmap bool, flags string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StreamIDKey, id),
		attribute.String(StreamDirectionKey, direction),
		attribute.Bool(StreamMmapKey, mmap),
		attribute.String(StreamFlagsKey, flags),
	}
}

// FormatAttributes describes the audio geometry on a span.
func FormatAttributes(sampleRate, channels int, encoding string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AudioSampleRateKey, sampleRate),
		attribute.Int(AudioChannelsKey, channels),
		attribute.String(AudioEncodingKey, encoding),
	}
}
