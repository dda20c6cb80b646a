package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/lokutor-ai/recall/pkg/audio"
)

// Whisper runs the local whisper.cpp model. One instance serves the
// whole process; inference is synchronous and serialized behind mu so
// concurrent callers never share a decoding context.
type Whisper struct {
	model whisper.Model
	mu    sync.Mutex
}

// NewWhisper loads the ggml model at modelPath. The library picks the
// best available backend (Metal, then CUDA, then CPU).
func NewWhisper(modelPath string) (*Whisper, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrModel, modelPath, err)
	}
	return &Whisper{model: model}, nil
}

func (w *Whisper) Name() string {
	return "whisper"
}

// Transcribe decodes the samples and joins the per-segment texts with
// newlines. Samples must be mono; they are resampled to the model
// rate when needed.
func (w *Whisper) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if sampleRate != whisper.SampleRate {
		resampled, err := audio.Resample(samples, sampleRate, whisper.SampleRate)
		if err != nil {
			return "", fmt.Errorf("%w: resample: %v", ErrModel, err)
		}
		samples = resampled
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("%w: new context: %v", ErrModel, err)
	}
	wctx.SetThreads(uint(runtime.NumCPU()))
	wctx.SetTranslate(false)
	if w.model.IsMultilingual() {
		if err := wctx.SetLanguage("auto"); err != nil {
			return "", fmt.Errorf("%w: set language: %v", ErrModel, err)
		}
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("%w: %v", ErrModel, err)
	}

	var texts []string
	for {
		segment, err := wctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("%w: read segment: %v", ErrModel, err)
		}
		texts = append(texts, strings.TrimSpace(segment.Text))
	}
	return strings.Join(texts, "\n"), nil
}

// Close releases the model.
func (w *Whisper) Close() error {
	return w.model.Close()
}
