package tts

import (
	"context"
	"time"
)

type mockProvider struct {
	chunkSize int
	delay     time.Duration
}

// NewMockProvider returns a provider that deterministically fabricates audio
// bytes from the input text. Used for development and tests.
func NewMockProvider() Provider {
	return &mockProvider{chunkSize: 512, delay: 5 * time.Millisecond}
}

func (m *mockProvider) Name() string    { return "mock" }
func (m *mockProvider) Enabled() bool   { return true }
func (m *mockProvider) Streaming() bool { return true }

func (m *mockProvider) Stream(ctx context.Context, text, language string, voice VoiceConfig) (Stream, error) {
	audio := m.fabricate(text)
	return &mockStream{provider: m, audio: audio}, nil
}

func (m *mockProvider) SynthesizeWhole(ctx context.Context, text, language string, voice VoiceConfig) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(m.delay):
	}
	return m.fabricate(text), nil
}

func (m *mockProvider) fabricate(text string) []byte {
	// Deterministic pseudo-audio: 16 bytes per input byte, derived from the
	// text so tests can assert on content.
	out := make([]byte, 0, len(text)*16)
	for i := 0; i < len(text); i++ {
		for j := 0; j < 16; j++ {
			out = append(out, text[i]^byte(j))
		}
	}
	return out
}

type mockStream struct {
	provider *mockProvider
	audio    []byte
	offset   int
	done     bool
}

func (s *mockStream) Next(ctx context.Context) Result {
	if s.done {
		return Result{Done: true}
	}
	select {
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	case <-time.After(s.provider.delay):
	}
	if s.offset >= len(s.audio) {
		s.done = true
		return Result{Done: true}
	}
	end := s.offset + s.provider.chunkSize
	if end > len(s.audio) {
		end = len(s.audio)
	}
	chunk := s.audio[s.offset:end]
	s.offset = end
	return Result{Audio: chunk}
}

func (s *mockStream) Close() error { return nil }
