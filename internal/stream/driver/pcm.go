package driver

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ManuGH/audiostream/internal/stream/model"
)

// DecodePCM converts little-endian PCM bytes to integer samples. Float
// samples are scaled to 32-bit integers.
func DecodePCM(enc model.Encoding, src []byte, dst []int) ([]int, error) {
	bps := enc.BytesPerSample()
	if bps == 0 {
		return dst, fmt.Errorf("encoding %s is not PCM", enc)
	}
	n := len(src) / bps
	dst = dst[:0]
	for i := range n {
		b := src[i*bps:]
		switch enc {
		case model.EncodingPCM16:
			dst = append(dst, int(int16(binary.LittleEndian.Uint16(b))))
		case model.EncodingPCM24:
			v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
			dst = append(dst, int(v))
		case model.EncodingPCM32:
			dst = append(dst, int(int32(binary.LittleEndian.Uint32(b))))
		case model.EncodingPCMFloat:
			f := math.Float32frombits(binary.LittleEndian.Uint32(b))
			dst = append(dst, int(float64(clampUnit(f))*math.MaxInt32))
		}
	}
	return dst, nil
}

// BitDepth returns the container bit depth of a PCM encoding.
func BitDepth(enc model.Encoding) int {
	if enc == model.EncodingPCMFloat {
		return 32
	}
	return enc.BytesPerSample() * 8
}

// PutInt16 stores s as little-endian PCM16.
func PutInt16(dst []byte, s int16) {
	binary.LittleEndian.PutUint16(dst, uint16(s))
}

// Float32ToInt16 converts a float sample in [-1, 1] to PCM16.
func Float32ToInt16(f float32) int16 {
	return int16(clampUnit(f) * math.MaxInt16)
}

func clampUnit(f float32) float32 {
	return min(max(f, -1), 1)
}
