package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/profai/voice-gateway/internal/config"
	"github.com/profai/voice-gateway/internal/protocol"
	"github.com/profai/voice-gateway/internal/tts"
)

func testChunker() config.ChunkerConfig {
	return config.ChunkerConfig{
		FirstChunkWords: 3,
		FirstChunkBytes: 24,
		ChunkBytes:      48,
		MaxTextLength:   500,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// multiChunkText splits into more than one chunk under testChunker.
const multiChunkText = "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu nu xi omicron"

type fakeSink struct {
	events []protocol.Event

	// disconnectAfterChunks makes Connected report false once that many
	// audio chunks went out. Negative means the socket never drops.
	disconnectAfterChunks int
	chunksSent            int
}

func newFakeSink() *fakeSink {
	return &fakeSink{disconnectAfterChunks: -1}
}

func (s *fakeSink) Connected() bool {
	return s.disconnectAfterChunks < 0 || s.chunksSent < s.disconnectAfterChunks
}

func (s *fakeSink) Send(event protocol.Event) error {
	s.events = append(s.events, event)
	if event["type"] == protocol.EventAudioChunk {
		s.chunksSent++
	}
	return nil
}

func (s *fakeSink) ofType(eventType string) []protocol.Event {
	var out []protocol.Event
	for _, e := range s.events {
		if e["type"] == eventType {
			out = append(out, e)
		}
	}
	return out
}

type scriptedProvider struct {
	name  string
	batch bool

	// failFrom makes Stream fail on every call numbered failFrom and later
	// (1-based). Zero disables scripted failures.
	failFrom      int
	failMidStream bool
	audio         []byte

	wholeAudio []byte
	wholeErr   error

	streamCalls int
	wholeCalls  int
}

func (p *scriptedProvider) Name() string    { return p.name }
func (p *scriptedProvider) Enabled() bool   { return true }
func (p *scriptedProvider) Streaming() bool { return !p.batch }

func (p *scriptedProvider) Stream(ctx context.Context, text, language string, voice tts.VoiceConfig) (tts.Stream, error) {
	p.streamCalls++
	if p.failFrom > 0 && p.streamCalls >= p.failFrom {
		return nil, &tts.ProviderError{Provider: p.name, Class: tts.ErrClassTransient, Err: errors.New("scripted dial failure")}
	}
	results := []tts.Result{{Audio: append([]byte(nil), p.audio...)}}
	if p.failMidStream {
		results = append(results, tts.Result{Err: &tts.ProviderError{
			Provider: p.name,
			Class:    tts.ErrClassConnectionLost,
			Err:      errors.New("scripted mid-stream failure"),
		}})
	} else {
		results = append(results, tts.Result{Done: true})
	}
	return &scriptedStream{results: results}, nil
}

func (p *scriptedProvider) SynthesizeWhole(ctx context.Context, text, language string, voice tts.VoiceConfig) ([]byte, error) {
	p.wholeCalls++
	if p.wholeErr != nil {
		return nil, p.wholeErr
	}
	return append([]byte(nil), p.wholeAudio...), nil
}

type scriptedStream struct {
	results []tts.Result
	next    int
}

func (s *scriptedStream) Next(ctx context.Context) tts.Result {
	if s.next >= len(s.results) {
		return tts.Result{Done: true}
	}
	res := s.results[s.next]
	s.next++
	return res
}

func (s *scriptedStream) Close() error { return nil }

func runJob(t *testing.T, sink *fakeSink, providers ...tts.Provider) JobResult {
	t.Helper()
	p := New(providers, testChunker(), nil, testLogger())
	return p.Run(context.Background(), sink, multiChunkText, "en-IN", tts.VoiceConfig{}, "req-1")
}

func TestRunCompletesWithContiguousChunkIDs(t *testing.T) {
	sink := newFakeSink()
	provider := &scriptedProvider{name: "primary", audio: []byte("pcm")}

	result := runJob(t, sink, provider)

	if result.Outcome != OutcomeComplete {
		t.Fatalf("outcome = %s, want complete", result.Outcome)
	}
	if len(sink.ofType(protocol.EventAudioStarted)) != 1 {
		t.Fatalf("expected exactly one audio_generation_started event")
	}

	chunks := sink.ofType(protocol.EventAudioChunk)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple audio chunks, got %d", len(chunks))
	}
	firstFlags := 0
	for i, chunk := range chunks {
		if got := chunk["chunk_id"].(int64); got != int64(i+1) {
			t.Fatalf("chunk %d has chunk_id %d, want %d", i, got, i+1)
		}
		if chunk["is_first_chunk"].(bool) {
			firstFlags++
			if i != 0 {
				t.Fatalf("is_first_chunk set on chunk %d", i+1)
			}
		}
	}
	if firstFlags != 1 {
		t.Fatalf("is_first_chunk set on %d chunks, want 1", firstFlags)
	}

	completes := sink.ofType(protocol.EventAudioComplete)
	if len(completes) != 1 {
		t.Fatalf("expected exactly one completion event, got %d", len(completes))
	}
	if got := completes[0]["total_chunks"].(int64); got != int64(len(chunks)) {
		t.Fatalf("total_chunks = %d, want %d", got, len(chunks))
	}
	if result.ChunksSent != int64(len(chunks)) {
		t.Fatalf("ChunksSent = %d, want %d", result.ChunksSent, len(chunks))
	}
	if len(sink.ofType(protocol.EventError)) != 0 {
		t.Fatalf("unexpected error event on a clean run")
	}
}

func TestFallbackBeforeFirstAudio(t *testing.T) {
	sink := newFakeSink()
	primary := &scriptedProvider{name: "primary", failFrom: 1}
	secondary := &scriptedProvider{name: "secondary", audio: []byte("pcm")}

	result := runJob(t, sink, primary, secondary)

	if result.Outcome != OutcomeComplete {
		t.Fatalf("outcome = %s, want complete", result.Outcome)
	}
	if primary.streamCalls != 1 {
		t.Fatalf("primary tried %d times, want 1; later chunks must stay on the chosen provider", primary.streamCalls)
	}
	if secondary.streamCalls < 2 {
		t.Fatalf("secondary served %d chunks, want all of them", secondary.streamCalls)
	}
	if len(sink.ofType(protocol.EventAudioComplete)) != 1 {
		t.Fatalf("expected completion event after fallback")
	}
}

func TestNoFallbackAfterDeliveredAudio(t *testing.T) {
	sink := newFakeSink()
	primary := &scriptedProvider{name: "primary", audio: []byte("pcm"), failFrom: 2}
	secondary := &scriptedProvider{name: "secondary", audio: []byte("pcm")}

	result := runJob(t, sink, primary, secondary)

	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", result.Outcome)
	}
	if secondary.streamCalls != 0 || secondary.wholeCalls != 0 {
		t.Fatalf("secondary must not be consulted after the client heard audio")
	}
	if len(sink.ofType(protocol.EventError)) != 1 {
		t.Fatalf("expected exactly one error event")
	}
	if len(sink.ofType(protocol.EventAudioComplete)) != 0 {
		t.Fatalf("failed job must not emit a completion event")
	}
}

func TestNoFallbackMidStream(t *testing.T) {
	sink := newFakeSink()
	primary := &scriptedProvider{name: "primary", audio: []byte("pcm"), failMidStream: true}
	secondary := &scriptedProvider{name: "secondary", audio: []byte("pcm")}

	result := runJob(t, sink, primary, secondary)

	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", result.Outcome)
	}
	if secondary.streamCalls != 0 {
		t.Fatalf("mid-stream failure after delivery must not fall back")
	}
	if len(sink.ofType(protocol.EventError)) != 1 {
		t.Fatalf("expected exactly one error event, got %d", len(sink.ofType(protocol.EventError)))
	}
}

func TestDisconnectAbortsWithoutFurtherEvents(t *testing.T) {
	sink := newFakeSink()
	sink.disconnectAfterChunks = 1
	provider := &scriptedProvider{name: "primary", audio: []byte("pcm")}

	result := runJob(t, sink, provider)

	if result.Outcome != OutcomeAborted {
		t.Fatalf("outcome = %s, want aborted", result.Outcome)
	}
	if sink.chunksSent != 1 {
		t.Fatalf("chunks sent after disconnect: got %d, want 1", sink.chunksSent)
	}
	if len(sink.ofType(protocol.EventError)) != 0 {
		t.Fatalf("aborted job must not emit an error event")
	}
	if len(sink.ofType(protocol.EventAudioComplete)) != 0 {
		t.Fatalf("aborted job must not emit a completion event")
	}
}

func TestBatchFallbackWhenStreamingExhausted(t *testing.T) {
	sink := newFakeSink()
	primary := &scriptedProvider{name: "primary", failFrom: 1}
	secondary := &scriptedProvider{name: "secondary", failFrom: 1}
	batch := &scriptedProvider{name: "batch", batch: true, wholeAudio: []byte("whole-audio")}

	result := runJob(t, sink, primary, secondary, batch)

	if result.Outcome != OutcomeComplete {
		t.Fatalf("outcome = %s, want complete", result.Outcome)
	}
	if batch.wholeCalls != 1 {
		t.Fatalf("batch provider called %d times, want 1", batch.wholeCalls)
	}

	chunks := sink.ofType(protocol.EventAudioChunk)
	if len(chunks) != 1 {
		t.Fatalf("batch fallback must deliver one chunk, got %d", len(chunks))
	}
	if !chunks[0]["is_first_chunk"].(bool) {
		t.Fatalf("batch chunk must carry is_first_chunk")
	}
	if len(sink.ofType(protocol.EventAudioComplete)) != 1 {
		t.Fatalf("batch-delivered job must emit a completion event")
	}
	if len(sink.ofType(protocol.EventError)) != 0 {
		t.Fatalf("unexpected error event on successful batch fallback")
	}
}

func TestAllProvidersFail(t *testing.T) {
	sink := newFakeSink()
	primary := &scriptedProvider{name: "primary", failFrom: 1}
	secondary := &scriptedProvider{name: "secondary", failFrom: 1}
	batch := &scriptedProvider{name: "batch", batch: true, wholeErr: errors.New("quota exceeded")}

	result := runJob(t, sink, primary, secondary, batch)

	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", result.Outcome)
	}
	if result.ChunksSent != 0 || result.BytesSent != 0 {
		t.Fatalf("failed job sent audio: chunks=%d bytes=%d", result.ChunksSent, result.BytesSent)
	}
	if got := len(sink.ofType(protocol.EventError)); got != 1 {
		t.Fatalf("expected exactly one error event, got %d", got)
	}
}

func TestRecorderObservesOutcome(t *testing.T) {
	sink := newFakeSink()
	provider := &scriptedProvider{name: "primary", audio: []byte("pcm")}
	rec := &captureRecorder{}

	p := New([]tts.Provider{provider}, testChunker(), rec, testLogger())
	result := p.Run(context.Background(), sink, multiChunkText, "en-IN", tts.VoiceConfig{}, "req-1")

	if rec.firstChunks != 1 {
		t.Fatalf("first chunk recorded %d times, want 1", rec.firstChunks)
	}
	if rec.outcome != "complete" {
		t.Fatalf("recorded outcome %q, want complete", rec.outcome)
	}
	if rec.bytes != result.BytesSent {
		t.Fatalf("recorded bytes %d, want %d", rec.bytes, result.BytesSent)
	}
}

type captureRecorder struct {
	firstChunks int
	chunks      int64
	bytes       int64
	outcome     string
}

func (r *captureRecorder) RecordFirstChunk(ctx context.Context, latency time.Duration) {
	r.firstChunks++
}

func (r *captureRecorder) RecordAudio(ctx context.Context, chunks, bytes int64) {
	r.chunks = chunks
	r.bytes = bytes
}

func (r *captureRecorder) RecordJobOutcome(ctx context.Context, outcome string) {
	r.outcome = outcome
}
