package daemon

import (
	"fmt"

	"github.com/ManuGH/audiostream/internal/config"
	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/driver/filesrc"
	"github.com/ManuGH/audiostream/internal/stream/driver/speaker"
	"github.com/ManuGH/audiostream/internal/stream/driver/stub"
	"github.com/ManuGH/audiostream/internal/stream/driver/wavfile"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

// DriverFactory builds a fresh driver for every stream a session opens.
type DriverFactory func(cfg config.AppConfig) (driver.Driver, error)

// NewDriver builds the driver named by cfg.Driver.Name.
func NewDriver(cfg config.AppConfig) (driver.Driver, error) {
	dir, err := model.ParseDirection(cfg.Stream.Direction)
	if err != nil {
		return nil, err
	}
	f := cfg.Stream.Format()
	switch cfg.Driver.Name {
	case config.DriverStub:
		return stub.New(stub.Config{
			Direction:        dir,
			Format:           f,
			Realtime:         cfg.Driver.Realtime,
			Async:            cfg.Driver.Async,
			NominalLatencyMs: int32(cfg.Stream.NominalLatencyMs),
		}), nil
	case config.DriverWavFile:
		return wavfile.New(wavfile.Config{Path: cfg.Driver.Path, Format: f, Realtime: cfg.Driver.Realtime}), nil
	case config.DriverFileSrc:
		return filesrc.New(filesrc.Config{
			Path:     cfg.Driver.Path,
			Format:   f,
			Loop:     cfg.Driver.Loop,
			Realtime: cfg.Driver.Realtime,
		}), nil
	case config.DriverSpeaker:
		return speaker.New(speaker.Config{Format: f, BufferFrames: cfg.Stream.BufferFrames}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver.Name)
	}
}
