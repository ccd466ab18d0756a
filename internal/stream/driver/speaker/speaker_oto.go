// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build oto

package speaker

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"

	"github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

const drainPollInterval = 10 * time.Millisecond

// oto allows a single context per process.
var (
	otoOnce   sync.Once
	otoCtx    *oto.Context
	otoFormat model.AudioFormat
	otoErr    error
)

func sharedContext(cfg Config) (*oto.Context, error) {
	otoOnce.Do(func() {
		var format oto.Format
		switch cfg.Format.Encoding {
		case model.EncodingPCM16:
			format = oto.FormatSignedInt16LE
		case model.EncodingPCMFloat:
			format = oto.FormatFloat32LE
		default:
			otoErr = fmt.Errorf("%w: %s", ErrUnsupportedFormat, cfg.Format.Encoding)
			return
		}
		opts := &oto.NewContextOptions{
			SampleRate:   cfg.Format.SampleRate,
			ChannelCount: cfg.Format.ChannelCount,
			Format:       format,
		}
		if cfg.BufferFrames > 0 {
			opts.BufferSize = driver.FramesToDuration(int64(cfg.BufferFrames), cfg.Format.SampleRate)
		}
		ctx, ready, err := oto.NewContext(opts)
		if err != nil {
			otoErr = fmt.Errorf("create audio context: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
		otoFormat = cfg.Format
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoFormat != cfg.Format {
		return nil, fmt.Errorf("%w: audio output already opened as %s", ErrUnsupportedFormat, otoFormat)
	}
	return otoCtx, nil
}

// Driver plays the stream through oto.
type Driver struct {
	driver.Base
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	cb     driver.Callback
	player *oto.Player
	pr     *io.PipeReader
	pw     *io.PipeWriter
	closed bool
	wg     sync.WaitGroup
	stop   chan struct{}
}

var _ driver.Driver = (*Driver)(nil)

func New(cfg Config) *Driver {
	return &Driver{
		cfg:    cfg,
		logger: log.WithComponent("driver.speaker"),
		stop:   make(chan struct{}),
	}
}

func (d *Driver) Init(cb driver.Callback) error {
	ctx, err := sharedContext(d.cfg)
	if err != nil {
		return err
	}
	pr, pw := io.Pipe()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cb = cb
	d.pr, d.pw = pr, pw
	d.player = ctx.NewPlayer(pr)
	d.logger.Info().Str("format", d.cfg.Format.String()).Msg("speaker opened")
	return nil
}

func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return errors.New("speaker: not initialized")
	}
	d.player.Play()
	return nil
}

func (d *Driver) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		d.player.Pause()
	}
	return nil
}

// Flush can not discard what oto has buffered; it only stops playback.
func (d *Driver) Flush() error { return d.Pause() }

func (d *Driver) Standby() error { return d.Pause() }

// Drain reports completion through the callback once the backend buffer
// has played out.
func (d *Driver) Drain(model.DrainMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil || d.closed {
		return errors.New("speaker: not initialized")
	}
	player, cb := d.player, d.cb
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(drainPollInterval)
		defer ticker.Stop()
		for player.BufferedSize() > 0 {
			select {
			case <-ticker.C:
			case <-d.stop:
				return
			}
		}
		if cb != nil {
			cb.OnBufferStateChange(0)
		}
	}()
	return nil
}

// Transfer blocks until the backend has taken frameCount frames.
func (d *Driver) Transfer(buf []byte, frameCount int, actualFrameCount *int, latencyMs *int32) error {
	if buf == nil {
		return fmt.Errorf("speaker: %w", driver.ErrNotSupported)
	}
	d.mu.Lock()
	player, pw := d.player, d.pw
	d.mu.Unlock()
	if player == nil {
		return errors.New("speaker: not initialized")
	}
	if !player.IsPlaying() {
		player.Play()
	}
	frameSize := d.cfg.Format.FrameSize()
	n, err := pw.Write(buf[:frameCount*frameSize])
	*actualFrameCount = n / frameSize
	if err != nil {
		return fmt.Errorf("speaker write: %w", err)
	}
	buffered := int64(player.BufferedSize() / frameSize)
	*latencyMs = int32(driver.FramesToDuration(buffered, d.cfg.Format.SampleRate).Milliseconds())
	return nil
}

func (d *Driver) Shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.stop)
	player, pw := d.player, d.pw
	d.mu.Unlock()

	if pw != nil {
		_ = pw.Close()
	}
	d.wg.Wait()
	if player != nil {
		if err := player.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("close speaker player")
		}
	}
	d.logger.Info().Msg("speaker closed")
}
