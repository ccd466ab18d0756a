package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ManuGH/audiostream/internal/stream/model"
	"github.com/ManuGH/audiostream/internal/validate"
)

var (
	drivers   = []string{DriverStub, DriverWavFile, DriverFileSrc, DriverSpeaker}
	exporters = []string{"grpc", "http"}
)

// Validate checks cfg and reports every problem at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.OneOf("log.level", strings.ToLower(cfg.Log.Level), validate.LogLevels)

	validateStream(v, cfg.Stream)
	validateDriver(v, cfg)

	ss := cfg.Session
	v.Custom("session.duration", ss.Duration, nonNegativeDuration)
	v.Positive("session.burstFrames", ss.BurstFrames)
	v.Custom("session.drainMode", ss.DrainMode, func(x any) error {
		_, err := model.ParseDrainMode(x.(string))
		return err
	})
	v.NonNegative("session.maxReopens", ss.MaxReopens)
	v.DurationRange("session.reopenBackoff", ss.ReopenBackoff, 0, time.Minute)
	v.Positive("session.breakerThreshold", ss.BreakerThreshold)
	v.DurationRange("session.breakerWindow", ss.BreakerWindow, time.Second, time.Hour)
	v.DurationRange("session.breakerCooldown", ss.BreakerCooldown, 0, time.Hour)
	if ss.ReportPath != "" {
		v.WritableDir("session.reportPath", ss.ReportPath)
	}
	if ss.CapturePath != "" {
		v.WritableDir("session.capturePath", ss.CapturePath)
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		v.AddError("metrics.path", "must start with /", cfg.Metrics.Path)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, exporters)
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.Ratio("telemetry.samplingRate", cfg.Telemetry.SamplingRate)
	}

	if cfg.HTTP.Enabled {
		v.ListenAddr("http.listenAddr", cfg.HTTP.ListenAddr)
		v.Positive("http.rateLimit", cfg.HTTP.RateLimit)
		v.NonNegative("http.maxConns", cfg.HTTP.MaxConns)
		v.DurationRange("http.readTimeout", cfg.HTTP.ReadTimeout, time.Second, 5*time.Minute)
		v.DurationRange("http.writeTimeout", cfg.HTTP.WriteTimeout, time.Second, 5*time.Minute)
		v.DurationRange("http.shutdownTimeout", cfg.HTTP.ShutdownTimeout, 0, time.Minute)
	}

	if cfg.Discovery.Enabled {
		if !cfg.HTTP.Enabled {
			v.AddError("discovery.enabled", "requires http.enabled", cfg.Discovery.Enabled)
		}
		v.NotEmpty("discovery.service", cfg.Discovery.Service)
		v.NotEmpty("discovery.domain", cfg.Discovery.Domain)
	}

	if cfg.History.Enabled {
		v.WritableDir("history.path", cfg.History.Path)
		v.Positive("history.keep", cfg.History.Keep)
	}

	if cfg.Events.Enabled {
		v.NotEmpty("events.redisAddr", cfg.Events.RedisAddr)
		v.NotEmpty("events.channel", cfg.Events.Channel)
		v.Range("events.db", cfg.Events.DB, 0, 15)
	}

	return v.Err()
}

func validateStream(v *validate.Validator, s StreamConfig) {
	if _, err := model.ParseDirection(s.Direction); err != nil {
		v.AddError("stream.direction", err.Error(), s.Direction)
	}
	enc, err := model.ParseEncoding(s.Encoding)
	if err != nil {
		v.AddError("stream.encoding", err.Error(), s.Encoding)
	}
	if _, err := model.ParseFlags(s.Flags); err != nil {
		v.AddError("stream.flags", err.Error(), s.Flags)
	}
	v.Range("stream.sampleRate", s.SampleRate, 8000, 384000)
	if enc.IsPCM() {
		v.Range("stream.channels", s.Channels, 1, 32)
	}
	v.Positive("stream.bufferFrames", s.BufferFrames)
	v.Positive("stream.commandQueueSize", s.CommandQueueSize)
	v.Positive("stream.replyQueueSize", s.ReplyQueueSize)
	if s.Mmap {
		v.Positive("stream.mmapBurstFrames", s.MmapBurstFrames)
	} else {
		v.Positive("stream.dataQueueBytes", s.DataQueueBytes)
		if enc != "" && s.DataQueueBytes > 0 && s.DataQueueBytes < s.Format().FrameSize() {
			v.AddError("stream.dataQueueBytes", "smaller than one frame", s.DataQueueBytes)
		}
	}
	v.NonNegative("stream.nominalLatencyMs", s.NominalLatencyMs)
	v.Range("stream.realtimePriority", s.RealtimePriority, 0, 99)
	v.DurationRange("stream.shutdownTimeout", s.ShutdownTimeout, 100*time.Millisecond, time.Minute)
	v.Custom("stream.debug.transientStateDelay", s.Debug.TransientStateDelay, nonNegativeDuration)
}

func validateDriver(v *validate.Validator, cfg AppConfig) {
	d := cfg.Driver
	if !slices.Contains(drivers, d.Name) {
		v.OneOf("driver.name", d.Name, drivers)
		return
	}
	dir, _ := model.ParseDirection(cfg.Stream.Direction)
	switch d.Name {
	case DriverWavFile:
		if dir != model.DirectionOutput {
			v.AddError("driver.name", "wavfile only backs output streams", d.Name)
		}
		v.NotEmpty("driver.path", d.Path)
		if d.Path != "" {
			v.WritableDir("driver.path", d.Path)
		}
	case DriverFileSrc:
		if dir != model.DirectionInput {
			v.AddError("driver.name", "filesrc only backs input streams", d.Name)
		}
		v.ReadableFile("driver.path", d.Path)
	case DriverSpeaker:
		if dir != model.DirectionOutput {
			v.AddError("driver.name", "speaker only backs output streams", d.Name)
		}
	}
	if cfg.Stream.Mmap && d.Name != DriverStub {
		v.AddError("stream.mmap", fmt.Sprintf("not supported by driver %q", d.Name), cfg.Stream.Mmap)
	}
}

func nonNegativeDuration(x any) error {
	if x.(time.Duration) < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}
