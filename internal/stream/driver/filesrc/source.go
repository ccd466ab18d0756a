package filesrc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/ManuGH/audiostream/internal/stream/driver"
)

// ErrUnknownContainer is returned for file extensions without a decoder.
var ErrUnknownContainer = errors.New("filesrc: unsupported file type")

// source yields interleaved little-endian PCM16.
type source interface {
	io.Reader
	SampleRate() int
	Channels() int
	Close() error
}

func openSource(path string) (source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var src source
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		src, err = newWavSource(f)
	case ".mp3":
		src, err = newMP3Source(f)
	case ".ogg", ".oga":
		src, err = newVorbisSource(f)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownContainer, filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

type wavSource struct {
	f     *os.File
	dec   *wav.Decoder
	buf   *audio.IntBuffer
	shift int
	rest  []byte
}

func newWavSource(f *os.File) (*wavSource, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("decode wav header: %w", errors.Join(errors.New("invalid wav file"), dec.Err()))
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("wav audio format %d is not integer PCM", dec.WavAudioFormat)
	}
	depth := int(dec.BitDepth)
	if depth < 8 || depth > 32 {
		return nil, fmt.Errorf("wav bit depth %d is not supported", depth)
	}
	return &wavSource{
		f:   f,
		dec: dec,
		buf: &audio.IntBuffer{
			Format: &audio.Format{NumChannels: int(dec.NumChans), SampleRate: int(dec.SampleRate)},
			Data:   make([]int, 2048),
		},
		shift: depth - 16,
	}, nil
}

func (s *wavSource) SampleRate() int { return int(s.dec.SampleRate) }
func (s *wavSource) Channels() int   { return int(s.dec.NumChans) }
func (s *wavSource) Close() error    { return s.f.Close() }

func (s *wavSource) Read(p []byte) (int, error) {
	if len(s.rest) == 0 {
		s.buf.Data = s.buf.Data[:cap(s.buf.Data)]
		n, err := s.dec.PCMBuffer(s.buf)
		if n == 0 {
			if err == nil {
				err = io.EOF
			}
			return 0, err
		}
		out := make([]byte, 2*n)
		for i, v := range s.buf.Data[:n] {
			driver.PutInt16(out[2*i:], s.toInt16(v))
		}
		s.rest = out
	}
	n := copy(p, s.rest)
	s.rest = s.rest[n:]
	return n, nil
}

func (s *wavSource) toInt16(v int) int16 {
	switch {
	case s.shift > 0:
		return int16(v >> s.shift)
	case s.shift < 0:
		// 8-bit WAV is unsigned.
		return int16((v - 128) << -s.shift)
	default:
		return int16(v)
	}
}

type mp3Source struct {
	f   *os.File
	dec *mp3.Decoder
}

// go-mp3 always decodes to 16-bit stereo.
func newMP3Source(f *os.File) (*mp3Source, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	return &mp3Source{f: f, dec: dec}, nil
}

func (s *mp3Source) SampleRate() int            { return s.dec.SampleRate() }
func (s *mp3Source) Channels() int              { return 2 }
func (s *mp3Source) Close() error               { return s.f.Close() }
func (s *mp3Source) Read(p []byte) (int, error) { return s.dec.Read(p) }

type vorbisSource struct {
	f       *os.File
	dec     *oggvorbis.Reader
	samples []float32
	rest    []byte
}

func newVorbisSource(f *os.File) (*vorbisSource, error) {
	dec, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decode ogg vorbis: %w", err)
	}
	return &vorbisSource{f: f, dec: dec, samples: make([]float32, 4096)}, nil
}

func (s *vorbisSource) SampleRate() int { return s.dec.SampleRate() }
func (s *vorbisSource) Channels() int   { return s.dec.Channels() }
func (s *vorbisSource) Close() error    { return s.f.Close() }

func (s *vorbisSource) Read(p []byte) (int, error) {
	if len(s.rest) == 0 {
		n, err := s.dec.Read(s.samples)
		if n == 0 {
			if err == nil {
				err = io.EOF
			}
			return 0, err
		}
		out := make([]byte, 2*n)
		for i, f := range s.samples[:n] {
			driver.PutInt16(out[2*i:], driver.Float32ToInt16(f))
		}
		s.rest = out
	}
	n := copy(p, s.rest)
	s.rest = s.rest[n:]
	return n, nil
}
