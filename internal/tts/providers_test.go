package tts

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/profai/voice-gateway/internal/config"
)

func registryLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildProvidersSkipsDisabled(t *testing.T) {
	cfg := config.TTSConfig{
		FallbackOrder: []string{"elevenlabs", "sarvam", "mock"},
		// No API keys: both real adapters are constructed disabled.
	}
	providers, err := BuildProviders(cfg, registryLogger())
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if len(providers) != 1 || providers[0].Name() != "mock" {
		t.Fatalf("expected only the mock provider, got %d providers", len(providers))
	}
}

func TestBuildProvidersPreservesOrder(t *testing.T) {
	cfg := config.TTSConfig{
		FallbackOrder: []string{"sarvam", "elevenlabs"},
		Sarvam:        config.SarvamConfig{APIKey: "k1"},
		ElevenLabs:    config.ElevenLabsConfig{APIKey: "k2"},
	}
	providers, err := BuildProviders(cfg, registryLogger())
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if len(providers) != 2 || providers[0].Name() != "sarvam" || providers[1].Name() != "elevenlabs" {
		t.Fatalf("fallback order not preserved: %v", providerNames(providers))
	}
}

func TestBuildProvidersRejectsUnknownName(t *testing.T) {
	if _, err := BuildProviders(config.TTSConfig{FallbackOrder: []string{"gramophone"}}, registryLogger()); err == nil {
		t.Fatalf("unknown provider name should fail")
	}
}

func TestBuildProvidersAllDisabled(t *testing.T) {
	if _, err := BuildProviders(config.TTSConfig{FallbackOrder: []string{"elevenlabs"}}, registryLogger()); err == nil {
		t.Fatalf("expected error when every provider is disabled")
	}
}

func providerNames(providers []Provider) []string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	return names
}

func TestSarvamSynthesizeWhole(t *testing.T) {
	audio := []byte("sarvam-pcm-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("api-subscription-key"); got != "sk" {
			t.Errorf("api key header = %q", got)
		}
		io.WriteString(w, `{"audios":["`+base64.StdEncoding.EncodeToString(audio)+`"]}`)
	}))
	defer srv.Close()

	p := NewSarvamProvider(config.SarvamConfig{APIKey: "sk", Speaker: "meera", Endpoint: srv.URL})
	got, err := p.SynthesizeWhole(context.Background(), "hello", "en-IN", VoiceConfig{})
	if err != nil {
		t.Fatalf("SynthesizeWhole: %v", err)
	}
	if string(got) != string(audio) {
		t.Fatalf("audio mismatch: %q", got)
	}
}

func TestSarvamErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		class  ErrorClass
	}{
		{http.StatusTooManyRequests, ErrClassTransient},
		{http.StatusInternalServerError, ErrClassTransient},
		{http.StatusBadRequest, ErrClassUnsupportedInput},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		p := NewSarvamProvider(config.SarvamConfig{APIKey: "sk", Endpoint: srv.URL})
		_, err := p.SynthesizeWhole(context.Background(), "hello", "en-IN", VoiceConfig{})
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if got := ClassOf(err); got != tc.class {
			t.Fatalf("status %d classified as %s, want %s", tc.status, got, tc.class)
		}
	}
}

func TestSarvamStreamRechunks(t *testing.T) {
	audio := make([]byte, 20000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"audios":["`+base64.StdEncoding.EncodeToString(audio)+`"]}`)
	}))
	defer srv.Close()

	p := NewSarvamProvider(config.SarvamConfig{APIKey: "sk", Endpoint: srv.URL})
	stream, err := p.Stream(context.Background(), "hello", "en-IN", VoiceConfig{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	var total, chunks int
	for {
		res := stream.Next(context.Background())
		if res.Err != nil {
			t.Fatalf("Next: %v", res.Err)
		}
		total += len(res.Audio)
		if len(res.Audio) > 0 {
			chunks++
			if len(res.Audio) > 8192 {
				t.Fatalf("chunk exceeds slice size: %d", len(res.Audio))
			}
		}
		if res.Done {
			break
		}
	}
	if total != len(audio) {
		t.Fatalf("streamed %d bytes, want %d", total, len(audio))
	}
	if chunks < 3 {
		t.Fatalf("expected re-chunked delivery, got %d chunks", chunks)
	}
}

func TestMockProviderDeterministic(t *testing.T) {
	p := NewMockProvider()
	first, err := p.SynthesizeWhole(context.Background(), "abc", "en-IN", VoiceConfig{})
	if err != nil {
		t.Fatalf("SynthesizeWhole: %v", err)
	}
	second, _ := p.SynthesizeWhole(context.Background(), "abc", "en-IN", VoiceConfig{})
	if string(first) != string(second) {
		t.Fatalf("mock audio not deterministic")
	}
	if len(first) != 3*16 {
		t.Fatalf("mock audio length = %d, want %d", len(first), 3*16)
	}
}

func TestExecProviderDisabledWithoutCommand(t *testing.T) {
	p, err := NewExecProvider(config.ExecSynthConfig{})
	if err != nil {
		t.Fatalf("NewExecProvider: %v", err)
	}
	if p.Enabled() {
		t.Fatalf("empty command must construct a disabled provider")
	}
	if p.Streaming() {
		t.Fatalf("exec provider is batch only")
	}
}
