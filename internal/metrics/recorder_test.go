package metrics

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestRecorderSessionCount(t *testing.T) {
	rec, err := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	rec.SessionOpened()
	rec.SessionOpened()
	rec.SessionClosed()
	if got := rec.ActiveSessions(); got != 1 {
		t.Fatalf("active sessions = %d, want 1", got)
	}

	// Instrument calls must be safe without a configured meter provider.
	ctx := context.Background()
	rec.RecordRequest(ctx, "chat_with_audio")
	rec.RecordError(ctx, "transcribe_audio")
	rec.RecordFirstChunk(ctx, 250*time.Millisecond)
	rec.RecordAudio(ctx, 4, 8192)
	rec.RecordJobOutcome(ctx, "complete")
}
