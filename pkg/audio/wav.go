package audio

import (
	"bytes"
	"encoding/binary"
)

// NewFloatWavBuffer builds a mono IEEE-float WAV file in memory.
// This is the payload shape the cloud transcription API accepts.
func NewFloatWavBuffer(samples []float32, sampleRate int) []byte {
	buf := new(bytes.Buffer)
	dataLen := len(samples) * 4

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))           // chunk size
	binary.Write(buf, binary.LittleEndian, uint16(3))            // IEEE float
	binary.Write(buf, binary.LittleEndian, uint16(1))            // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))   // sample rate
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*4)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(4))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(32))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(Float32Bytes(samples))

	return buf.Bytes()
}
