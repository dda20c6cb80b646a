package pipeline

import (
	"github.com/lokutor-ai/recall/pkg/logging"
	"github.com/lokutor-ai/recall/pkg/vad"
)

const (
	// minimum run of voiced frames worth keeping, in seconds
	minSpeechDur = 0.3
	// run of unvoiced frames that closes a segment, in seconds
	minSilenceDur = 0.5
)

// ExtractSpeech feeds samples through the VAD engine frame by frame
// and returns only the voiced portions. Voiced runs shorter than
// minSpeechDur are discarded; frames the VAD rejects are skipped and
// counted as neither voiced nor silent.
func ExtractSpeech(engine vad.Engine, samples []float32, log logging.Logger) []float32 {
	const frameDur = float64(vad.FrameSize) / float64(vad.SampleRate)

	var (
		retained    []float32
		runStart    int // index into retained where the current voiced run began
		inSpeech    bool
		speechDur   float64
		silenceDur  float64
		framesTotal int
		framesVoice int
	)

	for off := 0; off+vad.FrameSize <= len(samples); off += vad.FrameSize {
		frame := samples[off : off+vad.FrameSize]
		framesTotal++

		voiced, err := engine.IsVoiceSegment(frame)
		if err != nil {
			log.Debug("vad rejected frame", "frame", framesTotal-1, "error", err)
			continue
		}

		if voiced {
			framesVoice++
			if !inSpeech {
				if silenceDur >= minSilenceDur {
					silenceDur = 0
				}
				speechDur = frameDur
				inSpeech = true
				runStart = len(retained)
			} else {
				speechDur += frameDur
			}
			retained = append(retained, frame...)
			continue
		}

		if inSpeech {
			if speechDur >= minSpeechDur {
				silenceDur = frameDur
			} else {
				// too short to be speech; drop the run
				retained = retained[:runStart]
				silenceDur += speechDur + frameDur
			}
			speechDur = 0
			inSpeech = false
		} else {
			silenceDur += frameDur
		}
	}

	// a trailing run that never saw closing silence still has to meet
	// the minimum duration
	if inSpeech && speechDur < minSpeechDur {
		retained = retained[:runStart]
	}

	log.Debug("vad segmentation done",
		"frames", framesTotal, "voiced_frames", framesVoice, "retained_samples", len(retained))
	return retained
}
