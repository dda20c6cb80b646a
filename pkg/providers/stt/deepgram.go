package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lokutor-ai/recall/pkg/audio"
)

// deepgramWavRate is the rate the in-memory WAV payload is written
// at. Clips at any other rate are resampled before upload.
const deepgramWavRate = 16000

const deepgramTimeout = 30 * time.Second

type Deepgram struct {
	apiKey string
	url    string
	client *http.Client
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{
		apiKey: apiKey,
		url:    "https://api.deepgram.com/v1/listen",
		client: &http.Client{Timeout: deepgramTimeout},
	}
}

func (d *Deepgram) Name() string {
	return "deepgram"
}

func (d *Deepgram) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if sampleRate != deepgramWavRate {
		resampled, err := audio.Resample(samples, sampleRate, deepgramWavRate)
		if err != nil {
			return "", fmt.Errorf("%w: resample for upload: %v", ErrModel, err)
		}
		samples = resampled
	}
	wav := audio.NewFloatWavBuffer(samples, deepgramWavRate)

	u, err := url.Parse(d.url)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAPI, err)
	}
	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(wav))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAPI, err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrAPI, resp.StatusCode, string(respBody))
	}

	var result struct {
		ErrCode string `json:"err_code"`
		ErrMsg  string `json:"err_msg"`
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrAPI, err)
	}
	if result.ErrCode != "" {
		return "", fmt.Errorf("%w: %s: %s", ErrAPI, result.ErrCode, result.ErrMsg)
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	// an empty transcript is a valid "nothing was said" answer
	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}
