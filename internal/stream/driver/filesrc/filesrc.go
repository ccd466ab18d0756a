// Package filesrc is a capture driver that plays a WAV, MP3 or Ogg Vorbis
// file into the stream, optionally in a loop.
package filesrc

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

// ErrFormatMismatch is returned when the file does not match the stream.
var ErrFormatMismatch = errors.New("filesrc: file format does not match stream")

// Config selects the file and how it is played.
type Config struct {
	Path   string
	Format model.AudioFormat
	// Loop restarts the file at its end instead of producing silence.
	Loop bool
	// Realtime paces reads at the stream's sample rate.
	Realtime bool
}

// Driver captures from a decoded audio file.
type Driver struct {
	driver.Base
	cfg    Config
	pacer  *driver.Pacer
	logger zerolog.Logger

	mu    sync.Mutex
	src   source
	eof   bool
	read  int64
	loops int
}

var _ driver.Driver = (*Driver)(nil)

func New(cfg Config) *Driver {
	return &Driver{
		cfg:   cfg,
		pacer: driver.NewPacer(cfg.Format.SampleRate),
		logger: log.Derive(func(c *zerolog.Context) {
			*c = c.Str(log.FieldComponent, "driver.filesrc").Str(log.FieldPath, cfg.Path)
		}),
	}
}

// Init opens the file and checks that it decodes to the stream format.
func (d *Driver) Init(driver.Callback) error {
	f := d.cfg.Format
	if f.Encoding != model.EncodingPCM16 {
		return fmt.Errorf("%w: stream encoding %s, want %s", ErrFormatMismatch, f.Encoding, model.EncodingPCM16)
	}
	src, err := openSource(d.cfg.Path)
	if err != nil {
		return err
	}
	if src.SampleRate() != f.SampleRate || src.Channels() != f.ChannelCount {
		src.Close()
		return fmt.Errorf("%w: file is %dHz/%dch, stream is %dHz/%dch",
			ErrFormatMismatch, src.SampleRate(), src.Channels(), f.SampleRate, f.ChannelCount)
	}
	d.mu.Lock()
	d.src = src
	d.mu.Unlock()
	d.logger.Debug().Str("format", f.String()).Bool("loop", d.cfg.Loop).Msg("file source opened")
	return nil
}

func (d *Driver) Start() error { return nil }

func (d *Driver) Pause() error {
	d.pacer.Reset()
	return nil
}

func (d *Driver) Flush() error { return nil }

func (d *Driver) Standby() error {
	d.pacer.Reset()
	return nil
}

func (d *Driver) Drain(model.DrainMode) error { return nil }

// Transfer fills buf with frameCount frames. Past the end of a non-looping
// file the frames are silent.
func (d *Driver) Transfer(buf []byte, frameCount int, actualFrameCount *int, latencyMs *int32) error {
	if buf == nil {
		return fmt.Errorf("filesrc: %w", driver.ErrNotSupported)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return errors.New("filesrc: source is not open")
	}

	want := frameCount * d.cfg.Format.FrameSize()
	n, err := d.fill(buf[:want])
	if err != nil {
		return err
	}
	clear(buf[n:want])
	d.read += int64(frameCount)
	*actualFrameCount = frameCount
	*latencyMs = 0
	if d.cfg.Realtime {
		d.pacer.Wait(frameCount)
	}
	return nil
}

func (d *Driver) fill(p []byte) (int, error) {
	total := 0
	rewound := false
	for total < len(p) && !d.eof {
		n, err := d.src.Read(p[total:])
		total += n
		if n > 0 {
			rewound = false
		}
		switch {
		case errors.Is(err, io.EOF) || (n == 0 && err == nil):
			// An empty file would otherwise be restarted forever.
			if !d.cfg.Loop || rewound {
				d.eof = true
				return total, nil
			}
			if err := d.rewind(); err != nil {
				return total, err
			}
			rewound = true
		case err != nil:
			return total, fmt.Errorf("decode %s: %w", d.cfg.Path, err)
		}
	}
	return total, nil
}

func (d *Driver) rewind() error {
	d.src.Close()
	src, err := openSource(d.cfg.Path)
	if err != nil {
		d.src = nil
		return fmt.Errorf("reopen %s: %w", d.cfg.Path, err)
	}
	d.src = src
	d.loops++
	d.logger.Debug().Int("loop", d.loops).Msg("file source restarted")
	return nil
}

// RefinePosition reports the frames read from the file.
func (d *Driver) RefinePosition(pos *model.Position) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	pos.Frames = d.read
	return nil
}

// Exhausted reports whether a non-looping file has been read to its end.
func (d *Driver) Exhausted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eof
}

// Loops returns how many times the file was restarted.
func (d *Driver) Loops() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loops
}

func (d *Driver) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return
	}
	if err := d.src.Close(); err != nil {
		d.logger.Debug().Err(err).Msg("close file source")
	}
	d.src = nil
}
