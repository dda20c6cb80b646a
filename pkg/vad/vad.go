// Package vad provides voice-activity detection over fixed 100 ms
// frames of 16 kHz mono audio.
package vad

// SampleRate is the rate every engine expects.
const SampleRate = 16000

// FrameSize is the number of samples per frame (100 ms at 16 kHz).
const FrameSize = 1600

// Engine classifies one frame at a time. Implementations may keep
// state across frames within one clip; the worker calls Reset at
// every clip boundary.
type Engine interface {
	IsVoiceSegment(frame []float32) (bool, error)
	Reset()
}
