// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package wavfile is a playback driver that records the stream into a WAV
// file. The file appears at its final path only once the stream is shut
// down.
package wavfile

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

const wavFormatPCM = 1

// ErrUnsupportedFormat is returned by Init for non-PCM streams.
var ErrUnsupportedFormat = errors.New("wavfile: only PCM output streams are supported")

// Config selects the output file.
type Config struct {
	Path   string
	Format model.AudioFormat
	// Realtime paces writes at the stream's sample rate.
	Realtime bool
}

// Driver writes played frames to a WAV file.
type Driver struct {
	driver.Base
	cfg    Config
	pacer  *driver.Pacer
	logger zerolog.Logger

	mu      sync.Mutex
	file    *renameio.PendingFile
	enc     *wav.Encoder
	buf     *audio.IntBuffer
	paused  bool
	written int64
	closed  bool
}

var _ driver.Driver = (*Driver)(nil)

// New returns an unopened driver.
func New(cfg Config) *Driver {
	return &Driver{
		cfg:   cfg,
		pacer: driver.NewPacer(cfg.Format.SampleRate),
		logger: log.Derive(func(c *zerolog.Context) {
			*c = c.Str(log.FieldComponent, "driver.wavfile").Str(log.FieldPath, cfg.Path)
		}),
	}
}

// Init creates the pending output file.
func (d *Driver) Init(driver.Callback) error {
	f := d.cfg.Format
	if !f.Encoding.IsPCM() {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Encoding)
	}
	pf, err := renameio.NewPendingFile(d.cfg.Path)
	if err != nil {
		return fmt.Errorf("create pending wav file: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.file = pf
	d.enc = wav.NewEncoder(pf, f.SampleRate, driver.BitDepth(f.Encoding), f.ChannelCount, wavFormatPCM)
	d.buf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: f.ChannelCount, SampleRate: f.SampleRate},
		SourceBitDepth: driver.BitDepth(f.Encoding),
	}
	d.logger.Debug().Str("format", f.String()).Msg("wav sink opened")
	return nil
}

func (d *Driver) Start() error {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
	return nil
}

func (d *Driver) Pause() error {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
	d.pacer.Reset()
	return nil
}

// Flush has nothing to discard; frames are encoded as they arrive.
func (d *Driver) Flush() error { return nil }

func (d *Driver) Standby() error {
	d.pacer.Reset()
	return nil
}

func (d *Driver) Drain(model.DrainMode) error { return nil }

// Transfer encodes frameCount frames from buf.
func (d *Driver) Transfer(buf []byte, frameCount int, actualFrameCount *int, latencyMs *int32) error {
	if buf == nil {
		return fmt.Errorf("wavfile: %w", driver.ErrNotSupported)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enc == nil || d.closed {
		return errors.New("wavfile: sink is not open")
	}

	n := frameCount * d.cfg.Format.FrameSize()
	data, err := driver.DecodePCM(d.cfg.Format.Encoding, buf[:n], d.buf.Data)
	if err != nil {
		return err
	}
	d.buf.Data = data
	if err := d.enc.Write(d.buf); err != nil {
		return fmt.Errorf("encode wav frames: %w", err)
	}
	d.written += int64(frameCount)
	*actualFrameCount = frameCount
	*latencyMs = 0
	if d.cfg.Realtime {
		d.pacer.Wait(frameCount)
	}
	return nil
}

// RefinePosition reports the number of frames committed to the file.
func (d *Driver) RefinePosition(pos *model.Position) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	pos.Frames = d.written
	return nil
}

// Written returns the number of frames encoded so far.
func (d *Driver) Written() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written
}

// Shutdown finalizes the WAV header and moves the file into place.
func (d *Driver) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.enc == nil {
		return
	}
	d.closed = true
	defer func() {
		if err := d.file.Cleanup(); err != nil {
			d.logger.Debug().Err(err).Msg("cleanup pending wav file")
		}
	}()
	if err := d.enc.Close(); err != nil {
		d.logger.Error().Err(err).Msg("failed to finalize wav header")
		return
	}
	if err := d.file.CloseAtomicallyReplace(); err != nil {
		d.logger.Error().Err(err).Msg("failed to move wav file into place")
		return
	}
	d.logger.Info().
		Str(log.FieldEvent, "driver.wavfile.closed").
		Int64(log.FieldFrames, d.written).
		Msg("wav file written")
}
