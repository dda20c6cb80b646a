package vad

import (
	"fmt"

	"github.com/streamer45/silero-vad-go/speech"
)

// Silero is the neural detector backed by the Silero VAD ONNX model.
// The underlying detector is stateful across frames; Reset clears it
// for the next clip.
type Silero struct {
	det      *speech.Detector
	speaking bool
}

// NewSilero loads the model at modelPath.
func NewSilero(modelPath string) (*Silero, error) {
	det, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  modelPath,
		SampleRate: SampleRate,
		// 512-sample windows give the finest-grained detection when
		// the frame size does not divide evenly
		WindowSize:           512,
		Threshold:            0.5,
		MinSilenceDurationMs: 100,
		SpeechPadMs:          30,
	})
	if err != nil {
		return nil, fmt.Errorf("load silero model: %w", err)
	}
	return &Silero{det: det}, nil
}

func (s *Silero) IsVoiceSegment(frame []float32) (bool, error) {
	segments, err := s.det.Detect(frame)
	if err != nil {
		return false, fmt.Errorf("silero detect: %w", err)
	}
	// Detect only reports transitions; carry the speaking state across
	// frames and flip it on the last transition seen in this frame.
	for _, seg := range segments {
		if seg.SpeechEndAt > 0 {
			s.speaking = false
		} else {
			s.speaking = true
		}
	}
	return s.speaking, nil
}

func (s *Silero) Reset() {
	s.speaking = false
	_ = s.det.Reset()
}

// Close releases the ONNX session.
func (s *Silero) Close() error {
	return s.det.Destroy()
}
