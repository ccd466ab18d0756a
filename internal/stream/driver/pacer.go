package driver

import "time"

// Pacer delays a software driver so that frames are consumed at the
// configured sample rate, as a hardware sink would.
type Pacer struct {
	sampleRate int
	now        func() time.Time
	sleep      func(time.Duration)

	start  time.Time
	frames int64
}

// NewPacer returns a pacer for sampleRate frames per second.
func NewPacer(sampleRate int) *Pacer {
	return &Pacer{sampleRate: sampleRate, now: time.Now, sleep: time.Sleep}
}

// Reset restarts the timeline, e.g. after standby or pause.
func (p *Pacer) Reset() {
	p.start = time.Time{}
	p.frames = 0
}

// Wait accounts frames and sleeps until wall time catches up with them.
func (p *Pacer) Wait(frames int) {
	if p.sampleRate <= 0 || frames <= 0 {
		return
	}
	if p.start.IsZero() {
		p.start = p.now()
	}
	p.frames += int64(frames)
	due := p.start.Add(time.Duration(p.frames) * time.Second / time.Duration(p.sampleRate))
	if d := due.Sub(p.now()); d > 0 {
		p.sleep(d)
	}
}

// FramesToDuration converts a frame count to playback time.
func FramesToDuration(frames int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
