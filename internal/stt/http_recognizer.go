package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/profai/voice-gateway/internal/config"
)

// httpRecognizer posts the audio body to a Deepgram-style pre-recorded
// transcription endpoint and reads the first alternative of the first
// channel.
type httpRecognizer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func newHTTPRecognizer(cfg config.STTConfig) *httpRecognizer {
	return &httpRecognizer{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
	}
}

type sttResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (r *httpRecognizer) Transcribe(ctx context.Context, audio []byte, language string) (TranscriptResult, error) {
	endpoint := r.endpoint
	if language != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return TranscriptResult{}, fmt.Errorf("stt endpoint: %w", err)
		}
		q := u.Query()
		q.Set("language", language)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return TranscriptResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Token "+r.apiKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("stt request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return TranscriptResult{}, fmt.Errorf("stt backend returned status %s", resp.Status)
	}

	var decoded sttResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return TranscriptResult{}, fmt.Errorf("decode stt response: %w", err)
	}
	if len(decoded.Results.Channels) == 0 || len(decoded.Results.Channels[0].Alternatives) == 0 {
		return TranscriptResult{}, fmt.Errorf("stt backend returned no transcript")
	}
	alt := decoded.Results.Channels[0].Alternatives[0]
	return TranscriptResult{Text: alt.Transcript, Confidence: alt.Confidence}, nil
}
