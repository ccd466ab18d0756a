package driver

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/audiostream/internal/stream/model"
)

func TestDecodePCM(t *testing.T) {
	t.Run("pcm16", func(t *testing.T) {
		src := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80}
		got, err := DecodePCM(model.EncodingPCM16, src, nil)
		require.NoError(t, err)
		assert.Equal(t, []int{1, -1, math.MinInt16}, got)
	})
	t.Run("pcm24", func(t *testing.T) {
		src := []byte{0xff, 0xff, 0x7f, 0x00, 0x00, 0x80}
		got, err := DecodePCM(model.EncodingPCM24, src, nil)
		require.NoError(t, err)
		assert.Equal(t, []int{1<<23 - 1, -1 << 23}, got)
	})
	t.Run("float", func(t *testing.T) {
		src := make([]byte, 8)
		binary.LittleEndian.PutUint32(src, math.Float32bits(1))
		binary.LittleEndian.PutUint32(src[4:], math.Float32bits(-2))
		got, err := DecodePCM(model.EncodingPCMFloat, src, nil)
		require.NoError(t, err)
		assert.Equal(t, []int{math.MaxInt32, -math.MaxInt32}, got)
	})
	t.Run("compressed", func(t *testing.T) {
		_, err := DecodePCM(model.EncodingMP3, []byte{1, 2}, nil)
		assert.Error(t, err)
	})
}

func TestSampleHelpers(t *testing.T) {
	assert.Equal(t, 16, BitDepth(model.EncodingPCM16))
	assert.Equal(t, 24, BitDepth(model.EncodingPCM24))
	assert.Equal(t, 32, BitDepth(model.EncodingPCMFloat))
	assert.Equal(t, int16(math.MaxInt16), Float32ToInt16(1.5))
	assert.Equal(t, int16(0), Float32ToInt16(0))

	b := make([]byte, 2)
	PutInt16(b, -2)
	assert.Equal(t, []byte{0xfe, 0xff}, b)
}
