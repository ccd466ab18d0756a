// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads the daemon configuration from defaults, a strict YAML
// file and AUDIOSTREAM_* environment variables, and reloads it on change.
package config

import (
	"time"

	"github.com/ManuGH/audiostream/internal/stream"
	"github.com/ManuGH/audiostream/internal/stream/model"
	"github.com/ManuGH/audiostream/internal/telemetry"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "AUDIOSTREAM_"

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Log       LogConfig       `yaml:"log"`
	Stream    StreamConfig    `yaml:"stream"`
	Driver    DriverConfig    `yaml:"driver"`
	Session   SessionConfig   `yaml:"session"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	HTTP      HTTPConfig      `yaml:"http"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	History   HistoryConfig   `yaml:"history"`
	Events    EventsConfig    `yaml:"events"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// StreamConfig describes the stream the session opens.
type StreamConfig struct {
	Direction        string        `yaml:"direction"`
	SampleRate       int           `yaml:"sampleRate"`
	Channels         int           `yaml:"channels"`
	Encoding         string        `yaml:"encoding"`
	Flags            []string      `yaml:"flags"`
	BufferFrames     int           `yaml:"bufferFrames"`
	DataQueueBytes   int           `yaml:"dataQueueBytes"`
	CommandQueueSize int           `yaml:"commandQueueSize"`
	ReplyQueueSize   int           `yaml:"replyQueueSize"`
	Mmap             bool          `yaml:"mmap"`
	MmapBurstFrames  int           `yaml:"mmapBurstFrames"`
	NominalLatencyMs int           `yaml:"nominalLatencyMs"`
	RealtimePriority int           `yaml:"realtimePriority"`
	ShutdownTimeout  time.Duration `yaml:"shutdownTimeout"`
	Debug            DebugConfig   `yaml:"debug"`
}

// DebugConfig maps onto stream.DebugParameters.
type DebugConfig struct {
	ForceTransientBurst   bool          `yaml:"forceTransientBurst"`
	ForceSynchronousDrain bool          `yaml:"forceSynchronousDrain"`
	ForceDrainToDraining  bool          `yaml:"forceDrainToDraining"`
	TransientStateDelay   time.Duration `yaml:"transientStateDelay"`
}

// Driver names.
const (
	DriverStub    = "stub"
	DriverWavFile = "wavfile"
	DriverFileSrc = "filesrc"
	DriverSpeaker = "speaker"
)

// DriverConfig selects the audio engine behind the stream.
type DriverConfig struct {
	Name string `yaml:"name"`
	// Path is the WAV file written by wavfile or the file played by filesrc.
	Path     string `yaml:"path"`
	Loop     bool   `yaml:"loop"`
	Realtime bool   `yaml:"realtime"`
	// Async makes the stub driver complete transfers through callbacks.
	Async bool `yaml:"async"`
}

// SessionConfig drives the session runner.
type SessionConfig struct {
	// Duration stops the session after this long. Zero runs until shutdown
	// or until a non-looping source is exhausted.
	Duration    time.Duration `yaml:"duration"`
	BurstFrames int           `yaml:"burstFrames"`
	// DrainMode is "all" or "early_notify".
	DrainMode  string `yaml:"drainMode"`
	ReportPath string `yaml:"reportPath"`
	// CapturePath, when set on an input session, records the captured audio.
	CapturePath      string        `yaml:"capturePath"`
	MaxReopens       int           `yaml:"maxReopens"`
	ReopenBackoff    time.Duration `yaml:"reopenBackoff"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerWindow    time.Duration `yaml:"breakerWindow"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

type HTTPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
	// RateLimit is requests per minute per client IP.
	RateLimit int `yaml:"rateLimit"`
	// MaxConns caps concurrent connections. Zero means unlimited.
	MaxConns        int           `yaml:"maxConns"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// AllowedOrigins enables CORS for these browser origins. "*" allows any.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	Service  string `yaml:"service"`
	Domain   string `yaml:"domain"`
}

// HistoryConfig enables the SQLite session history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	// Keep bounds the number of stored sessions; older rows are pruned.
	Keep int `yaml:"keep"`
}

// EventsConfig publishes stream state changes to a Redis channel.
type EventsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RedisAddr string `yaml:"redisAddr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Channel   string `yaml:"channel"`
}

// Format returns the stream's audio format. The config must be valid.
func (s StreamConfig) Format() model.AudioFormat {
	enc, _ := model.ParseEncoding(s.Encoding)
	return model.AudioFormat{SampleRate: s.SampleRate, ChannelCount: s.Channels, Encoding: enc}
}

// ContextConfig translates the section into a stream.ContextConfig.
func (s StreamConfig) ContextConfig() (stream.ContextConfig, error) {
	flags, err := model.ParseFlags(s.Flags)
	if err != nil {
		return stream.ContextConfig{}, err
	}
	return stream.ContextConfig{
		Format:           s.Format(),
		Flags:            flags,
		CommandQueueSize: s.CommandQueueSize,
		ReplyQueueSize:   s.ReplyQueueSize,
		DataQueueBytes:   s.DataQueueBytes,
		BufferSizeFrames: s.BufferFrames,
		Mmap:             s.Mmap,
		MmapBurstFrames:  s.MmapBurstFrames,
		NominalLatencyMs: int32(s.NominalLatencyMs),
		Debug:            s.Debug.Parameters(),
	}, nil
}

func (d DebugConfig) Parameters() stream.DebugParameters {
	return stream.DebugParameters{
		ForceTransientBurst:   d.ForceTransientBurst,
		ForceSynchronousDrain: d.ForceSynchronousDrain,
		ForceDrainToDraining:  d.ForceDrainToDraining,
		TransientStateDelay:   d.TransientStateDelay,
	}
}

// TelemetryConfig translates the section into a telemetry.Config.
func (c AppConfig) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    c.Log.Service,
		ServiceVersion: c.Version,
		Environment:    c.Telemetry.Environment,
		ExporterType:   c.Telemetry.Exporter,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		SamplingRate:   c.Telemetry.SamplingRate,
	}
}
