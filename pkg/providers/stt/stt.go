// Package stt contains the transcription provider adapters: the
// local whisper.cpp model and the Deepgram cloud API.
package stt

import (
	"context"
	"errors"
)

// Provider turns speech samples into text. Samples are mono float32
// at the given rate.
type Provider interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
	Name() string
}

var (
	// ErrNetwork covers transport failures and deadline overruns on
	// the cloud path. Triggers local fallback.
	ErrNetwork = errors.New("provider network error")

	// ErrAPI covers error responses from the cloud endpoint.
	// Triggers local fallback.
	ErrAPI = errors.New("provider api error")

	// ErrModel covers local inference failures. Surfaced as a
	// result-level error; the clip is not retried.
	ErrModel = errors.New("provider model error")
)
