package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lokutor-ai/recall/pkg/audio"
	"github.com/lokutor-ai/recall/pkg/providers/stt"
	"github.com/lokutor-ai/recall/pkg/vad"
)

type mockProvider struct {
	name   string
	result string
	err    error
	calls  int
}

func (m *mockProvider) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	m.calls++
	return m.result, m.err
}

func (m *mockProvider) Name() string {
	return m.name
}

// voiceEverywhereVAD marks every frame voiced so the whole clip is
// retained.
type voiceEverywhereVAD struct {
	resets int
}

func (v *voiceEverywhereVAD) IsVoiceSegment(frame []float32) (bool, error) { return true, nil }
func (v *voiceEverywhereVAD) Reset()                                       { v.resets++ }

type silenceVAD struct{}

func (silenceVAD) IsVoiceSegment(frame []float32) (bool, error) { return false, nil }
func (silenceVAD) Reset()                                       {}

type encodeCall struct {
	samples int
	path    string
}

func newTestWorker(primary, fallback *mockProvider, engine vad.Engine, encodes *[]encodeCall, encodeErr error) *Worker {
	w := NewWorker(WorkerConfig{
		Primary:   primary,
		Fallback:  providerOrNil(fallback),
		VAD:       engine,
		OutputDir: "/tmp/recall-test",
		Encode: func(samples []float32, sampleRate, channels int, outPath string) error {
			if encodes != nil {
				*encodes = append(*encodes, encodeCall{samples: len(samples), path: outPath})
			}
			return encodeErr
		},
	})
	w.clock = func() time.Time {
		return time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)
	}
	return w
}

func providerOrNil(p *mockProvider) stt.Provider {
	if p == nil {
		return nil
	}
	return p
}

func speechClip() *audio.Clip {
	return &audio.Clip{
		Device:     audio.AudioDevice{Name: "test mic", Kind: audio.KindInput},
		Samples:    make([]float32, 3*vad.SampleRate),
		SampleRate: vad.SampleRate,
		Channels:   1,
		Path:       "/tmp/raw.mp4",
	}
}

func runOne(t *testing.T, w *Worker, clip *audio.Clip) TranscriptionResult {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	if err := w.Submit(clip); err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, ok := <-w.Results()
	if !ok {
		t.Fatal("results channel closed early")
	}
	w.Stop()
	return res
}

func TestWorkerEmptySpeech(t *testing.T) {
	primary := &mockProvider{name: "mock", result: "should not be called"}
	var encodes []encodeCall
	w := newTestWorker(primary, nil, silenceVAD{}, &encodes, nil)

	// 3s of all-zero 16kHz mono samples
	res := runOne(t, w, speechClip())

	if res.Err != "" {
		t.Fatalf("no-speech must not be an error, got %q", res.Err)
	}
	if res.Text != "" {
		t.Errorf("expected empty text, got %q", res.Text)
	}
	if primary.calls != 0 {
		t.Errorf("provider must not run on silent clips, ran %d times", primary.calls)
	}
	// the artifact is still produced
	if len(encodes) != 1 {
		t.Fatalf("expected 1 encode, got %d", len(encodes))
	}
	want := filepath.Join("/tmp/recall-test", "test mic (input)_2024-03-09_14-30-05.mp4")
	if res.Path != want {
		t.Errorf("expected path %q, got %q", want, res.Path)
	}
}

func TestWorkerCloudFallback(t *testing.T) {
	primary := &mockProvider{name: "deepgram", err: errors.New("invalid api key")}
	fallback := &mockProvider{name: "whisper", result: "hello from the local model"}
	vadEngine := &voiceEverywhereVAD{}
	w := newTestWorker(primary, fallback, vadEngine, nil, nil)

	res := runOne(t, w, speechClip())

	if res.Err != "" {
		t.Fatalf("fallback succeeded, result must carry no error, got %q", res.Err)
	}
	if res.Text != "hello from the local model" {
		t.Errorf("expected fallback transcript, got %q", res.Text)
	}
	if res.Engine != "whisper" {
		t.Errorf("expected engine whisper, got %q", res.Engine)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Errorf("expected both providers tried once, got %d/%d", primary.calls, fallback.calls)
	}
}

func TestWorkerCloudSuccessSkipsFallback(t *testing.T) {
	primary := &mockProvider{name: "deepgram", result: "cloud transcript"}
	fallback := &mockProvider{name: "whisper", result: "local transcript"}
	w := newTestWorker(primary, fallback, &voiceEverywhereVAD{}, nil, nil)

	res := runOne(t, w, speechClip())

	if !strings.HasPrefix(res.Text, "cloud transcript") {
		t.Errorf("cloud transcript must be used verbatim, got %q", res.Text)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback must not run after cloud success, ran %d times", fallback.calls)
	}
}

func TestWorkerLocalErrorSurfaces(t *testing.T) {
	primary := &mockProvider{name: "whisper", err: errors.New("model exploded")}
	var encodes []encodeCall
	w := newTestWorker(primary, nil, &voiceEverywhereVAD{}, &encodes, nil)

	res := runOne(t, w, speechClip())

	if res.Err == "" {
		t.Fatal("expected a populated error")
	}
	if res.Text != "" {
		t.Errorf("errored result must carry no text, got %q", res.Text)
	}
	if len(encodes) != 1 {
		t.Errorf("artifact must be written even when transcription fails, got %d encodes", len(encodes))
	}
}

func TestWorkerEncodeErrorSurfaces(t *testing.T) {
	primary := &mockProvider{name: "mock", result: "fine"}
	w := newTestWorker(primary, nil, &voiceEverywhereVAD{}, nil, errors.New("ffmpeg exit 1"))

	res := runOne(t, w, speechClip())

	if res.Err == "" {
		t.Fatal("expected encode failure to surface")
	}
	if res.Path != "" {
		t.Errorf("failed encode must not claim a path, got %q", res.Path)
	}
}

func TestWorkerResetsVADPerClip(t *testing.T) {
	primary := &mockProvider{name: "mock", result: "text"}
	vadEngine := &voiceEverywhereVAD{}
	w := newTestWorker(primary, nil, vadEngine, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	for i := 0; i < 3; i++ {
		if err := w.Submit(speechClip()); err != nil {
			t.Fatalf("submit: %v", err)
		}
		<-w.Results()
	}
	w.Stop()

	if vadEngine.resets != 3 {
		t.Errorf("expected a VAD reset per clip, got %d", vadEngine.resets)
	}
}

func TestWorkerShutdownStopsDraining(t *testing.T) {
	primary := &mockProvider{name: "mock", result: "text"}
	w := newTestWorker(primary, nil, &voiceEverywhereVAD{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	w.Stop()

	if err := w.Submit(speechClip()); err != ErrShutdown {
		t.Errorf("expected ErrShutdown after stop, got %v", err)
	}
	// results channel closes once the loop exits
	for range w.Results() {
	}
}
