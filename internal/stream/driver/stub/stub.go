// Package stub is a software driver that accepts every operation, moves
// audio nowhere (or produces noise for capture) and optionally paces itself
// at the stream's sample rate.
package stub

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

// ErrNotInitialized is returned when a command arrives before Init.
var ErrNotInitialized = errors.New("stub: driver not initialized")

// Config tunes the stub.
type Config struct {
	Direction model.Direction
	Format    model.AudioFormat
	// Realtime sleeps in Transfer for the duration of the transferred frames.
	Realtime bool
	// Async reports buffer and clip completion through the driver callback.
	Async bool
	// CallbackDelay is the wait before async notifications fire.
	CallbackDelay time.Duration
	// NominalLatencyMs is reported from Transfer and the mmap position query.
	NominalLatencyMs int32
}

// Driver implements driver.Driver.
type Driver struct {
	driver.Base
	cfg   Config
	pacer *driver.Pacer

	mu          sync.Mutex
	cb          driver.Callback
	initialized bool
	standby     bool
	startedAt   time.Time
	calls       []string
	wg          sync.WaitGroup
	shutdown    bool
}

// New returns a stub driver.
func New(cfg Config) *Driver {
	if cfg.CallbackDelay <= 0 {
		cfg.CallbackDelay = 5 * time.Millisecond
	}
	return &Driver{
		cfg:     cfg,
		pacer:   driver.NewPacer(cfg.Format.SampleRate),
		standby: true,
	}
}

var _ driver.Driver = (*Driver)(nil)

// Calls returns the operations invoked so far, in order.
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *Driver) record(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, op)
	if !d.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (d *Driver) Init(cb driver.Callback) error {
	d.mu.Lock()
	d.cb = cb
	d.initialized = true
	d.calls = append(d.calls, "init")
	d.mu.Unlock()
	return nil
}

func (d *Driver) Start() error {
	if err := d.record("start"); err != nil {
		return err
	}
	d.mu.Lock()
	if d.standby {
		d.standby = false
		d.startedAt = time.Now()
	}
	d.mu.Unlock()
	return nil
}

func (d *Driver) Pause() error {
	if err := d.record("pause"); err != nil {
		return err
	}
	d.pacer.Reset()
	return nil
}

func (d *Driver) Flush() error {
	return d.record("flush")
}

func (d *Driver) Standby() error {
	if err := d.record("standby"); err != nil {
		return err
	}
	d.mu.Lock()
	d.standby = true
	d.mu.Unlock()
	d.pacer.Reset()
	return nil
}

func (d *Driver) Drain(mode model.DrainMode) error {
	if err := d.record("drain"); err != nil {
		return err
	}
	if d.cfg.Async && d.cfg.Direction == model.DirectionOutput {
		d.notify(func(cb driver.Callback) {
			if mode == model.DrainEarlyNotify {
				cb.OnClipStateChange(d.cfg.Format.SampleRate/100, false)
			}
			cb.OnClipStateChange(0, false)
		})
	}
	return nil
}

func (d *Driver) Transfer(buf []byte, frameCount int, actualFrameCount *int, latencyMs *int32) error {
	if err := d.record("transfer"); err != nil {
		return err
	}
	d.mu.Lock()
	if d.standby {
		d.standby = false
		d.startedAt = time.Now()
	}
	d.mu.Unlock()

	*actualFrameCount = frameCount
	*latencyMs = d.cfg.NominalLatencyMs
	if d.cfg.Direction == model.DirectionInput && buf != nil {
		fillNoise(buf)
	}
	if d.cfg.Async {
		d.notify(func(cb driver.Callback) { cb.OnBufferStateChange(0) })
		return nil
	}
	if d.cfg.Realtime {
		d.pacer.Wait(frameCount)
	}
	return nil
}

// GetMmapPositionAndLatency derives the hardware position from the time
// elapsed since the driver left standby.
func (d *Driver) GetMmapPositionAndLatency(pos *model.Position, latencyMs *int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return ErrNotInitialized
	}
	now := time.Now()
	if d.standby || d.startedAt.IsZero() {
		pos.Frames = 0
	} else {
		elapsed := now.Sub(d.startedAt)
		pos.Frames = int64(elapsed) * int64(d.cfg.Format.SampleRate) / int64(time.Second)
	}
	pos.TimeNs = now.UnixNano()
	*latencyMs = d.cfg.NominalLatencyMs
	return nil
}

func (d *Driver) Shutdown() {
	d.mu.Lock()
	d.calls = append(d.calls, "shutdown")
	d.shutdown = true
	d.mu.Unlock()
	d.wg.Wait()
	logger := log.WithComponent("driver.stub")
	logger.Debug().
		Str(log.FieldDirection, d.cfg.Direction.String()).
		Msg("stub driver shut down")
}

func (d *Driver) notify(fn func(driver.Callback)) {
	d.mu.Lock()
	cb := d.cb
	if cb == nil || d.shutdown {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	delay := d.cfg.CallbackDelay
	go func() {
		defer d.wg.Done()
		time.Sleep(delay)
		fn(cb)
	}()
}

func fillNoise(buf []byte) {
	for i := 0; i+8 <= len(buf); i += 8 {
		v := rand.Uint64()
		for j := 0; j < 8; j++ {
			buf[i+j] = byte(v >> (8 * j))
		}
	}
	for i := len(buf) &^ 7; i < len(buf); i++ {
		buf[i] = byte(rand.UintN(256))
	}
}
