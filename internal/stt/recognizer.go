package stt

import (
	"context"
	"fmt"

	"github.com/profai/voice-gateway/internal/config"
)

// TranscriptResult captures recognizer output.
type TranscriptResult struct {
	Text       string
	Confidence float64
}

// Recognizer abstracts STT backends. Audio arrives exactly as the client
// sent it, decoded from base64 but otherwise untouched.
type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte, language string) (TranscriptResult, error)
}

// NewRecognizer builds the recognizer selected by config. A disabled config
// yields (nil, nil); the caller treats a nil recognizer as unavailable.
func NewRecognizer(cfg config.STTConfig) (Recognizer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Mode {
	case "", "mock":
		return NewMockRecognizer(), nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("stt mode http requires an endpoint")
		}
		return newHTTPRecognizer(cfg), nil
	case "exec":
		return NewExecRecognizer(cfg)
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}
