package config

import "time"

// Defaults returns the configuration used when nothing else is set.
func Defaults() AppConfig {
	return AppConfig{
		Log: LogConfig{
			Level:   "info",
			Service: "audiostreamd",
		},
		Stream: StreamConfig{
			Direction:        "output",
			SampleRate:       48000,
			Channels:         2,
			Encoding:         "pcm_16",
			BufferFrames:     960,
			DataQueueBytes:   4 * 960 * 4,
			CommandQueueSize: 1,
			ReplyQueueSize:   1,
			NominalLatencyMs: 20,
			RealtimePriority: 3,
			ShutdownTimeout:  5 * time.Second,
		},
		Driver: DriverConfig{
			Name:     DriverStub,
			Realtime: true,
		},
		Session: SessionConfig{
			BurstFrames:      960,
			DrainMode:        "all",
			MaxReopens:       3,
			ReopenBackoff:    500 * time.Millisecond,
			BreakerThreshold: 3,
			BreakerWindow:    time.Minute,
			BreakerCooldown:  30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		HTTP: HTTPConfig{
			Enabled:         true,
			ListenAddr:      ":8089",
			RateLimit:       120,
			MaxConns:        64,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Service: "_audiostream._tcp",
			Domain:  "local.",
		},
		History: HistoryConfig{
			Path: "audiostream.db",
			Keep: 500,
		},
		Events: EventsConfig{
			RedisAddr: "localhost:6379",
			Channel:   "audiostream:events",
		},
	}
}
