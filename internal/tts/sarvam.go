package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/profai/voice-gateway/internal/config"
)

// sarvamProvider synthesizes over a REST API. The API returns whole utterances,
// so Stream re-slices the response into client-sized chunks; the provider also
// serves as the whole-text batch path.
type sarvamProvider struct {
	cfg       config.SarvamConfig
	client    *http.Client
	chunkSize int
}

func NewSarvamProvider(cfg config.SarvamConfig) Provider {
	return &sarvamProvider{
		cfg:       cfg,
		client:    &http.Client{Timeout: 45 * time.Second},
		chunkSize: 8192,
	}
}

func (p *sarvamProvider) Name() string    { return "sarvam" }
func (p *sarvamProvider) Enabled() bool   { return p.cfg.APIKey != "" }
func (p *sarvamProvider) Streaming() bool { return true }

type sarvamRequest struct {
	Inputs             []string `json:"inputs"`
	TargetLanguageCode string   `json:"target_language_code"`
	Speaker            string   `json:"speaker"`
	Model              string   `json:"model"`
}

type sarvamResponse struct {
	Audios []string `json:"audios"`
}

func (p *sarvamProvider) Stream(ctx context.Context, text, language string, voice VoiceConfig) (Stream, error) {
	audio, err := p.SynthesizeWhole(ctx, text, language, voice)
	if err != nil {
		return nil, err
	}
	return &sliceStream{audio: audio, chunkSize: p.chunkSize}, nil
}

func (p *sarvamProvider) SynthesizeWhole(ctx context.Context, text, language string, voice VoiceConfig) ([]byte, error) {
	speaker := voice.Speaker
	if speaker == "" {
		speaker = p.cfg.Speaker
	}
	payload := sarvamRequest{
		Inputs:             []string{text},
		TargetLanguageCode: language,
		Speaker:            speaker,
		Model:              "bulbul:v2",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal synth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-subscription-key", p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyErr(p.Name(), ErrClassConnectionLost, fmt.Errorf("synth request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, classifyErr(p.Name(), ErrClassTransient, fmt.Errorf("synth status %d", resp.StatusCode))
	default:
		return nil, classifyErr(p.Name(), ErrClassUnsupportedInput, fmt.Errorf("synth status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyErr(p.Name(), ErrClassConnectionLost, fmt.Errorf("read synth response: %w", err))
	}
	var decoded sarvamResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, classifyErr(p.Name(), ErrClassTransient, fmt.Errorf("decode synth response: %w", err))
	}
	if len(decoded.Audios) == 0 {
		return nil, classifyErr(p.Name(), ErrClassTransient, fmt.Errorf("empty synth response"))
	}

	audio, err := base64.StdEncoding.DecodeString(decoded.Audios[0])
	if err != nil {
		return nil, classifyErr(p.Name(), ErrClassTransient, fmt.Errorf("decode audio: %w", err))
	}
	return audio, nil
}

// sliceStream replays already-synthesized audio as ordered chunks.
type sliceStream struct {
	audio     []byte
	chunkSize int
	offset    int
	done      bool
}

func (s *sliceStream) Next(ctx context.Context) Result {
	if s.done {
		return Result{Done: true}
	}
	if err := ctx.Err(); err != nil {
		return Result{Err: err}
	}
	if s.offset >= len(s.audio) {
		s.done = true
		return Result{Done: true}
	}
	end := s.offset + s.chunkSize
	if end > len(s.audio) {
		end = len(s.audio)
	}
	chunk := s.audio[s.offset:end]
	s.offset = end
	return Result{Audio: chunk}
}

func (s *sliceStream) Close() error { return nil }
