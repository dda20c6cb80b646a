package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lokutor-ai/recall/pkg/audio"
	"github.com/lokutor-ai/recall/pkg/logging"
	"github.com/lokutor-ai/recall/pkg/providers/stt"
	"github.com/lokutor-ai/recall/pkg/vad"
)

// TranscriptionResult is the worker's output for one clip. Err is
// empty on success; an empty Text with an empty Err is the "no
// speech" signal, not a failure.
type TranscriptionResult struct {
	Clip      *audio.Clip
	Text      string
	Path      string
	Timestamp int64 // seconds since epoch
	Engine    string
	Err       string
}

// EncodeFunc writes a clip to an MP4 artifact. Injected so tests can
// run without ffmpeg.
type EncodeFunc func(samples []float32, sampleRate, channels int, outPath string) error

// WorkerConfig wires one transcription worker.
type WorkerConfig struct {
	// Primary provider; tried first for every clip.
	Primary stt.Provider
	// Fallback is used when the primary fails. Nil disables fallback.
	Fallback stt.Provider
	VAD      vad.Engine
	// OutputDir receives the encoded clip artifacts.
	OutputDir string
	// Encode defaults to audio.EncodeClip.
	Encode EncodeFunc
	Logger logging.Logger
}

// Worker is the single long-lived transcription task: it drains
// clips, runs VAD + the provider chain, encodes the artifact and
// emits results. One instance exists per process.
type Worker struct {
	cfg      WorkerConfig
	in       *Queue[*audio.Clip]
	out      *Queue[TranscriptionResult]
	shutdown atomic.Bool
	stop     chan struct{}
	wg       sync.WaitGroup
	clock    func() time.Time
}

// NewWorker builds a worker; call Start to begin draining.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Encode == nil {
		cfg.Encode = audio.EncodeClip
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.NoOpLogger{}
	}
	return &Worker{
		cfg:   cfg,
		in:    NewQueue[*audio.Clip](),
		out:   NewQueue[TranscriptionResult](),
		stop:  make(chan struct{}),
		clock: time.Now,
	}
}

// Submit hands a clip to the worker. Returns ErrShutdown once the
// worker is stopping.
func (w *Worker) Submit(clip *audio.Clip) error {
	if w.shutdown.Load() {
		return ErrShutdown
	}
	if err := w.in.Push(clip); err != nil {
		return ErrShutdown
	}
	return nil
}

// Results is the stream of per-clip outcomes, closed after Stop once
// in-flight work finishes.
func (w *Worker) Results() <-chan TranscriptionResult {
	return w.out.Out()
}

// Start launches the drain loop.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.out.Close()
		for {
			if w.shutdown.Load() {
				return
			}
			select {
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			case clip, ok := <-w.in.Out():
				if !ok {
					return
				}
				res := w.process(ctx, clip)
				if err := w.out.Push(res); err != nil {
					return
				}
			}
		}
	}()
}

// Stop sets the shutdown flag; the worker drains no further input.
// Blocks until the loop exits.
func (w *Worker) Stop() {
	if w.shutdown.CompareAndSwap(false, true) {
		close(w.stop)
		w.in.Close()
	}
	w.wg.Wait()
}

func (w *Worker) process(ctx context.Context, clip *audio.Clip) TranscriptionResult {
	log := w.cfg.Logger
	ts := w.clock().UTC()
	res := TranscriptionResult{
		Clip:      clip,
		Timestamp: ts.Unix(),
	}

	text, engine, terr := w.transcribe(ctx, clip)

	// The artifact is written regardless of how transcription went.
	outPath := filepath.Join(w.cfg.OutputDir, audio.ClipFileName(clip.Device, ts))
	if err := w.cfg.Encode(clip.Samples, clip.SampleRate, clip.Channels, outPath); err != nil {
		log.Error("clip encode failed", "device", clip.Device.String(), "error", err)
		res.Err = err.Error()
		return res
	}
	res.Path = outPath

	if terr != nil {
		log.Error("transcription failed", "device", clip.Device.String(), "error", terr)
		res.Err = terr.Error()
		return res
	}
	res.Text = text
	res.Engine = engine
	return res
}

// transcribe normalizes the clip, strips silence and runs the
// provider chain. An empty return with nil error means no speech.
func (w *Worker) transcribe(ctx context.Context, clip *audio.Clip) (string, string, error) {
	log := w.cfg.Logger

	samples := audio.DownmixMono(clip.Samples, clip.Channels)
	if clip.SampleRate != vad.SampleRate {
		log.Debug("resampling clip",
			"device", clip.Device.String(), "from", clip.SampleRate, "to", vad.SampleRate)
		resampled, err := audio.Resample(samples, clip.SampleRate, vad.SampleRate)
		if err != nil {
			return "", "", err
		}
		samples = resampled
	}

	w.cfg.VAD.Reset()
	speech := ExtractSpeech(w.cfg.VAD, samples, log)
	if len(speech) == 0 {
		log.Debug("no speech detected", "device", clip.Device.String())
		return "", "", nil
	}

	text, err := w.cfg.Primary.Transcribe(ctx, speech, vad.SampleRate)
	if err == nil {
		return text, w.cfg.Primary.Name(), nil
	}
	if w.cfg.Fallback == nil {
		return "", "", err
	}
	log.Warn("primary provider failed, falling back",
		"device", clip.Device.String(), "primary", w.cfg.Primary.Name(), "error", err)
	text, err = w.cfg.Fallback.Transcribe(ctx, speech, vad.SampleRate)
	if err != nil {
		return "", "", err
	}
	return text, w.cfg.Fallback.Name(), nil
}
