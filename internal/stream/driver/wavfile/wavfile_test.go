package wavfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/audiostream/internal/stream/driver"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

var format = model.AudioFormat{SampleRate: 16000, ChannelCount: 2, Encoding: model.EncodingPCM16}

func TestWritesDecodableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	d := New(Config{Path: path, Format: format})
	require.NoError(t, d.Init(nil))
	require.NoError(t, d.Start())

	buf := make([]byte, 400)
	for i := 0; i+1 < len(buf); i += 2 {
		driver.PutInt16(buf[i:], int16(i))
	}
	var actual int
	var lat int32
	require.NoError(t, d.Transfer(buf, 100, &actual, &lat))
	require.NoError(t, d.Transfer(buf, 50, &actual, &lat))
	assert.Equal(t, 50, actual)
	assert.Equal(t, int64(150), d.Written())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file appears only after shutdown")

	d.Shutdown()
	d.Shutdown()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(16000), dec.SampleRate)
	assert.Equal(t, uint16(2), dec.NumChans)
	assert.Equal(t, uint16(16), dec.BitDepth)

	pcm, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	require.Len(t, pcm.Data, 300)
	assert.Equal(t, 2, pcm.Data[1])
	assert.Equal(t, 98, pcm.Data[249])
}

func TestRejectsCompressedFormat(t *testing.T) {
	d := New(Config{Path: filepath.Join(t.TempDir(), "x.wav"), Format: model.AudioFormat{SampleRate: 44100, Encoding: model.EncodingMP3}})
	assert.ErrorIs(t, d.Init(nil), ErrUnsupportedFormat)
	d.Shutdown()
}

func TestTransferBeforeInitFails(t *testing.T) {
	d := New(Config{Path: filepath.Join(t.TempDir(), "x.wav"), Format: format})
	var actual int
	var lat int32
	assert.Error(t, d.Transfer(make([]byte, 4), 1, &actual, &lat))
	assert.ErrorIs(t, d.Transfer(nil, 0, &actual, &lat), driver.ErrNotSupported)
}

func TestRefinePositionReportsWrittenFrames(t *testing.T) {
	d := New(Config{Path: filepath.Join(t.TempDir(), "x.wav"), Format: format})
	require.NoError(t, d.Init(nil))
	defer d.Shutdown()
	var actual int
	var lat int32
	require.NoError(t, d.Transfer(make([]byte, 40), 10, &actual, &lat))
	pos := model.Position{Frames: 99}
	require.NoError(t, d.RefinePosition(&pos))
	assert.Equal(t, int64(10), pos.Frames)
}
