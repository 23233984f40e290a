package tts

import (
	"context"
	"errors"
	"fmt"
)

// VoiceConfig carries provider-agnostic voice selection.
type VoiceConfig struct {
	Voice   string
	Speaker string
}

// Result is one item yielded by a provider stream: an audio chunk, a terminal
// success marker, or a terminal failure.
type Result struct {
	Audio []byte
	Done  bool
	Err   error
}

// Stream is a pull-based audio stream for one text chunk. After a terminal
// result (Done or Err set) further calls return the same terminal result.
type Stream interface {
	Next(ctx context.Context) Result
	Close() error
}

// Provider wraps one external speech backend behind a uniform contract.
type Provider interface {
	Name() string
	// Enabled reports whether the provider was constructed with usable
	// credentials. Disabled providers are skipped in the fallback order.
	Enabled() bool
	// Streaming distinguishes chunk-streaming providers from batch-only ones
	// used as last resort.
	Streaming() bool
	Stream(ctx context.Context, text, language string, voice VoiceConfig) (Stream, error)
	SynthesizeWhole(ctx context.Context, text, language string, voice VoiceConfig) ([]byte, error)
}

// ErrorClass tells the pipeline how to treat a provider failure.
type ErrorClass int

const (
	ErrClassTransient ErrorClass = iota
	ErrClassConnectionLost
	ErrClassUnsupportedInput
)

func (c ErrorClass) String() string {
	switch c {
	case ErrClassConnectionLost:
		return "connection_lost"
	case ErrClassUnsupportedInput:
		return "unsupported_input"
	default:
		return "transient"
	}
}

// ProviderError is a classified provider failure.
type ProviderError struct {
	Provider string
	Class    ErrorClass
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func classifyErr(provider string, class ErrorClass, err error) error {
	return &ProviderError{Provider: provider, Class: class, Err: err}
}

// ClassOf extracts the error classification, defaulting to transient for
// errors a provider did not classify. Caller-initiated cancellation is never
// reclassified; adapters must propagate it as-is.
func ClassOf(err error) ErrorClass {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ErrClassTransient
}
