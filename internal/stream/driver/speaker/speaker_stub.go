//go:build !oto

package speaker

import (
	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

// Driver is the placeholder used without the oto build tag.
type Driver struct {
	driver.Base
	cfg Config
}

var _ driver.Driver = (*Driver)(nil)

func New(cfg Config) *Driver { return &Driver{cfg: cfg} }

func (d *Driver) Init(driver.Callback) error               { return ErrUnavailable }
func (d *Driver) Start() error                             { return ErrUnavailable }
func (d *Driver) Pause() error                             { return ErrUnavailable }
func (d *Driver) Flush() error                             { return ErrUnavailable }
func (d *Driver) Standby() error                           { return ErrUnavailable }
func (d *Driver) Drain(model.DrainMode) error              { return ErrUnavailable }
func (d *Driver) Transfer([]byte, int, *int, *int32) error { return ErrUnavailable }
func (d *Driver) Shutdown()                                {}
