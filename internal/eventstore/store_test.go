package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/profai/voice-gateway/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	// Ephemeral mode accepts writes silently.
	if err := es.RecordSession(context.Background(), "s1", "en-IN"); err != nil {
		t.Fatalf("record session: %v", err)
	}
	records, err := es.ListSessionRequests(context.Background(), "s1", 10)
	if err != nil || records != nil {
		t.Fatalf("ephemeral store should return nothing, got %v, %v", records, err)
	}
}

func TestRecordAndQuery(t *testing.T) {
	cfg := config.EventStoreConfig{Path: filepath.Join(t.TempDir(), "sessions.db"), RetentionMode: "persistent"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	sessionID := "session-123"
	if err := es.RecordSession(context.Background(), sessionID, "en-IN"); err != nil {
		t.Fatalf("record session: %v", err)
	}
	if err := es.RecordRequest(context.Background(), RequestRecord{
		SessionID: sessionID,
		RequestID: "req-1",
		Kind:      "chat_with_audio",
		Outcome:   "complete",
		LatencyMS: 280,
	}); err != nil {
		t.Fatalf("record request: %v", err)
	}

	records, err := es.ListSessionRequests(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Kind != "chat_with_audio" || records[0].Outcome != "complete" || records[0].LatencyMS != 280 {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	cfg := config.EventStoreConfig{
		Path:          filepath.Join(t.TempDir(), "sessions.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxSessions:   1,
	}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.RecordSession(context.Background(), "old-session", "en-IN"); err != nil {
		t.Fatalf("record session: %v", err)
	}
	if err := es.RecordRequest(context.Background(), RequestRecord{SessionID: "old-session", Kind: "ping"}); err != nil {
		t.Fatalf("record request: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.RecordSession(context.Background(), "new-session", "en-IN"); err != nil {
		t.Fatalf("record session: %v", err)
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	records, err := es.ListSessionRequests(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected old session pruned")
	}
}
