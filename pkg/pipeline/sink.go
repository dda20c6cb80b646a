package pipeline

import (
	"context"

	"github.com/lokutor-ai/recall/pkg/logging"
	"github.com/lokutor-ai/recall/pkg/store"
)

// RunStoreSink drains worker results into the store. Empty-speech
// and errored results are never stored; the artifact row and its
// transcription are written together. Returns when the results
// channel closes or ctx is cancelled.
func RunStoreSink(ctx context.Context, results <-chan TranscriptionResult, db *store.Database, log logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			if res.Err != "" {
				log.Error("clip failed", "device", res.Clip.Device.String(), "error", res.Err)
				continue
			}
			if res.Text == "" {
				log.Debug("skipping empty transcription", "device", res.Clip.Device.String())
				continue
			}

			chunkID, err := db.InsertAudioChunk(ctx, res.Path)
			if err != nil {
				log.Error("insert audio chunk failed", "path", res.Path, "error", err)
				continue
			}
			if _, err := db.InsertAudioTranscription(ctx, chunkID, res.Text, 0,
				res.Engine, res.Clip.Device, nil, nil, nil); err != nil {
				log.Error("insert transcription failed", "path", res.Path, "error", err)
				continue
			}
			log.Info("transcription stored",
				"device", res.Clip.Device.String(), "path", res.Path, "chars", len(res.Text))
		}
	}
}
