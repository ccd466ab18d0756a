// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys records every variable the last Load looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty configPath loads defaults and ENV only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file the loader reads.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseString(EnvPrefix+key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseBool(EnvPrefix+key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseInt(EnvPrefix+key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseDuration(EnvPrefix+key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseFloat(EnvPrefix+key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseList(EnvPrefix+key, defaultVal)
}

// Load builds the configuration: defaults, then the strict YAML file, then
// environment overrides, then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path over cfg. Unknown keys and trailing documents are
// rejected.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("LOG_SERVICE", cfg.Log.Service)

	s := &cfg.Stream
	s.Direction = l.envString("STREAM_DIRECTION", s.Direction)
	s.SampleRate = l.envInt("STREAM_SAMPLE_RATE", s.SampleRate)
	s.Channels = l.envInt("STREAM_CHANNELS", s.Channels)
	s.Encoding = l.envString("STREAM_ENCODING", s.Encoding)
	s.Flags = l.envList("STREAM_FLAGS", s.Flags)
	s.BufferFrames = l.envInt("STREAM_BUFFER_FRAMES", s.BufferFrames)
	s.DataQueueBytes = l.envInt("STREAM_DATA_QUEUE_BYTES", s.DataQueueBytes)
	s.CommandQueueSize = l.envInt("STREAM_COMMAND_QUEUE_SIZE", s.CommandQueueSize)
	s.ReplyQueueSize = l.envInt("STREAM_REPLY_QUEUE_SIZE", s.ReplyQueueSize)
	s.Mmap = l.envBool("STREAM_MMAP", s.Mmap)
	s.MmapBurstFrames = l.envInt("STREAM_MMAP_BURST_FRAMES", s.MmapBurstFrames)
	s.NominalLatencyMs = l.envInt("STREAM_NOMINAL_LATENCY_MS", s.NominalLatencyMs)
	s.RealtimePriority = l.envInt("STREAM_REALTIME_PRIORITY", s.RealtimePriority)
	s.ShutdownTimeout = l.envDuration("STREAM_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.Debug.ForceTransientBurst = l.envBool("STREAM_DEBUG_FORCE_TRANSIENT_BURST", s.Debug.ForceTransientBurst)
	s.Debug.ForceSynchronousDrain = l.envBool("STREAM_DEBUG_FORCE_SYNCHRONOUS_DRAIN", s.Debug.ForceSynchronousDrain)
	s.Debug.ForceDrainToDraining = l.envBool("STREAM_DEBUG_FORCE_DRAIN_TO_DRAINING", s.Debug.ForceDrainToDraining)
	s.Debug.TransientStateDelay = l.envDuration("STREAM_DEBUG_TRANSIENT_STATE_DELAY", s.Debug.TransientStateDelay)

	d := &cfg.Driver
	d.Name = l.envString("DRIVER", d.Name)
	d.Path = l.envString("DRIVER_PATH", d.Path)
	d.Loop = l.envBool("DRIVER_LOOP", d.Loop)
	d.Realtime = l.envBool("DRIVER_REALTIME", d.Realtime)
	d.Async = l.envBool("DRIVER_ASYNC", d.Async)

	ss := &cfg.Session
	ss.Duration = l.envDuration("SESSION_DURATION", ss.Duration)
	ss.BurstFrames = l.envInt("SESSION_BURST_FRAMES", ss.BurstFrames)
	ss.DrainMode = l.envString("SESSION_DRAIN_MODE", ss.DrainMode)
	ss.ReportPath = l.envString("SESSION_REPORT_PATH", ss.ReportPath)
	ss.CapturePath = l.envString("SESSION_CAPTURE_PATH", ss.CapturePath)
	ss.MaxReopens = l.envInt("SESSION_MAX_REOPENS", ss.MaxReopens)
	ss.ReopenBackoff = l.envDuration("SESSION_REOPEN_BACKOFF", ss.ReopenBackoff)
	ss.BreakerThreshold = l.envInt("SESSION_BREAKER_THRESHOLD", ss.BreakerThreshold)
	ss.BreakerWindow = l.envDuration("SESSION_BREAKER_WINDOW", ss.BreakerWindow)
	ss.BreakerCooldown = l.envDuration("SESSION_BREAKER_COOLDOWN", ss.BreakerCooldown)

	cfg.Metrics.Enabled = l.envBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Path = l.envString("METRICS_PATH", cfg.Metrics.Path)

	t := &cfg.Telemetry
	t.Enabled = l.envBool("TELEMETRY_ENABLED", t.Enabled)
	t.Exporter = l.envString("TELEMETRY_EXPORTER", t.Exporter)
	t.Endpoint = l.envString("TELEMETRY_ENDPOINT", t.Endpoint)
	t.Insecure = l.envBool("TELEMETRY_INSECURE", t.Insecure)
	t.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", t.SamplingRate)
	t.Environment = l.envString("TELEMETRY_ENVIRONMENT", t.Environment)

	h := &cfg.HTTP
	h.Enabled = l.envBool("HTTP_ENABLED", h.Enabled)
	h.ListenAddr = l.envString("HTTP_LISTEN_ADDR", h.ListenAddr)
	h.RateLimit = l.envInt("HTTP_RATE_LIMIT", h.RateLimit)
	h.MaxConns = l.envInt("HTTP_MAX_CONNS", h.MaxConns)
	h.ReadTimeout = l.envDuration("HTTP_READ_TIMEOUT", h.ReadTimeout)
	h.WriteTimeout = l.envDuration("HTTP_WRITE_TIMEOUT", h.WriteTimeout)
	h.ShutdownTimeout = l.envDuration("HTTP_SHUTDOWN_TIMEOUT", h.ShutdownTimeout)
	h.AllowedOrigins = l.envList("HTTP_ALLOWED_ORIGINS", h.AllowedOrigins)

	dc := &cfg.Discovery
	dc.Enabled = l.envBool("DISCOVERY_ENABLED", dc.Enabled)
	dc.Instance = l.envString("DISCOVERY_INSTANCE", dc.Instance)
	dc.Service = l.envString("DISCOVERY_SERVICE", dc.Service)
	dc.Domain = l.envString("DISCOVERY_DOMAIN", dc.Domain)

	cfg.History.Enabled = l.envBool("HISTORY_ENABLED", cfg.History.Enabled)
	cfg.History.Path = l.envString("HISTORY_PATH", cfg.History.Path)
	cfg.History.Keep = l.envInt("HISTORY_KEEP", cfg.History.Keep)

	e := &cfg.Events
	e.Enabled = l.envBool("EVENTS_ENABLED", e.Enabled)
	e.RedisAddr = l.envString("EVENTS_REDIS_ADDR", e.RedisAddr)
	e.Password = l.envString("EVENTS_REDIS_PASSWORD", e.Password)
	e.DB = l.envInt("EVENTS_REDIS_DB", e.DB)
	e.Channel = l.envString("EVENTS_CHANNEL", e.Channel)
}
