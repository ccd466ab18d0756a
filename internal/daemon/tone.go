package daemon

import (
	"math"

	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

const (
	toneFrequency = 440.0
	toneAmplitude = 0.25
)

// toneGenerator fills playback buffers with a sine wave. Encodings other
// than 16-bit PCM get silence.
type toneGenerator struct {
	format model.AudioFormat
	step   float64
	phase  float64
}

func newToneGenerator(f model.AudioFormat) *toneGenerator {
	g := &toneGenerator{format: f}
	if f.SampleRate > 0 {
		g.step = 2 * math.Pi * toneFrequency / float64(f.SampleRate)
	}
	return g
}

// Fill overwrites buf with whole frames of the tone, continuing the phase of
// the previous call.
func (g *toneGenerator) Fill(buf []byte) {
	if g.format.Encoding != model.EncodingPCM16 {
		clear(buf)
		return
	}
	fs := g.format.FrameSize()
	for off := 0; off+fs <= len(buf); off += fs {
		v := driver.Float32ToInt16(float32(toneAmplitude * math.Sin(g.phase)))
		for ch := 0; ch < g.format.ChannelCount; ch++ {
			driver.PutInt16(buf[off+2*ch:], v)
		}
		g.phase += g.step
		if g.phase >= 2*math.Pi {
			g.phase -= 2 * math.Pi
		}
	}
}
