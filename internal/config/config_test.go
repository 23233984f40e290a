package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8765 {
		t.Fatalf("expected default server port, got %d", cfg.Server.Port)
	}
	if len(cfg.TTS.FallbackOrder) != 3 || cfg.TTS.FallbackOrder[0] != "elevenlabs" {
		t.Fatalf("unexpected default fallback order: %v", cfg.TTS.FallbackOrder)
	}
	if cfg.Session.DefaultLanguage != "en-IN" {
		t.Fatalf("unexpected default language: %q", cfg.Session.DefaultLanguage)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOICEGW_SERVER_PORT", "9000")
	t.Setenv("VOICEGW_SESSION_DEFAULT_LANGUAGE", "hi-IN")
	t.Setenv("VOICEGW_TTS_FALLBACK_ORDER", "sarvam, exec")
	t.Setenv("VOICEGW_TTS_ELEVENLABS_API_KEY", "xi-key")
	t.Setenv("VOICEGW_CHAT_MODE", "http")
	t.Setenv("VOICEGW_CHAT_ENDPOINT", "http://chat.local/ask")
	t.Setenv("VOICEGW_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("VOICEGW_EVENT_STORE_RETENTION_DAYS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Fatalf("expected port override, got %d", cfg.Server.Port)
	}
	if cfg.Session.DefaultLanguage != "hi-IN" {
		t.Fatalf("expected language override, got %q", cfg.Session.DefaultLanguage)
	}
	if len(cfg.TTS.FallbackOrder) != 2 || cfg.TTS.FallbackOrder[1] != "exec" {
		t.Fatalf("expected fallback order override, got %v", cfg.TTS.FallbackOrder)
	}
	if cfg.TTS.ElevenLabs.APIKey != "xi-key" {
		t.Fatalf("expected elevenlabs api key override")
	}
	if cfg.Chat.Mode != "http" || cfg.Chat.Endpoint != "http://chat.local/ask" {
		t.Fatalf("expected chat overrides, got %q %q", cfg.Chat.Mode, cfg.Chat.Endpoint)
	}
	if cfg.EventStore.RetentionMode != "persistent" || cfg.EventStore.RetentionDays != 7 {
		t.Fatalf("expected event store overrides")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	body := []byte(`
server:
  port: 9100
tts:
  fallback_order: [mock]
  chunker:
    first_chunk_words: 40
    first_chunk_bytes: 200
    chunk_bytes: 1500
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Fatalf("expected port from file, got %d", cfg.Server.Port)
	}
	if len(cfg.TTS.FallbackOrder) != 1 || cfg.TTS.FallbackOrder[0] != "mock" {
		t.Fatalf("expected fallback order from file, got %v", cfg.TTS.FallbackOrder)
	}
	if cfg.TTS.Chunker.FirstChunkWords != 40 {
		t.Fatalf("expected chunker override, got %d", cfg.TTS.Chunker.FirstChunkWords)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	t.Setenv("VOICEGW_TTS_FALLBACK_ORDER", "bogus")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown provider")
	}
}
