package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"
)

// DecodeSamples converts one callback's worth of interleaved native
// frames into normalized float32 samples.
func DecodeSamples(format malgo.FormatType, data []byte) ([]float32, error) {
	switch format {
	case malgo.FormatU8:
		out := make([]float32, len(data))
		for i, b := range data {
			out[i] = (float32(b) - 128) / 128
		}
		return out, nil
	case malgo.FormatS16:
		out := make([]float32, len(data)/2)
		for i := range out {
			s := int16(binary.LittleEndian.Uint16(data[i*2:]))
			out[i] = float32(s) / 32768
		}
		return out, nil
	case malgo.FormatS24:
		out := make([]float32, len(data)/3)
		for i := range out {
			b := data[i*3 : i*3+3]
			s := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			// sign extend from 24 bits
			s = s << 8 >> 8
			out[i] = float32(s) / 8388608
		}
		return out, nil
	case malgo.FormatS32:
		out := make([]float32, len(data)/4)
		for i := range out {
			s := int32(binary.LittleEndian.Uint32(data[i*4:]))
			out[i] = float32(s) / 2147483648
		}
		return out, nil
	case malgo.FormatF32:
		out := make([]float32, len(data)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported sample format %v", format)
	}
}

// Float32Bytes reinterprets samples as little-endian f32 bytes, the
// layout the clip encoder consumes on stdin.
func Float32Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// DownmixMono averages interleaved channels into a mono signal.
// Mono input is returned unchanged.
func DownmixMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
