package pipeline

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/profai/voice-gateway/internal/config"
	"github.com/profai/voice-gateway/internal/protocol"
	"github.com/profai/voice-gateway/internal/tts"
)

// Sink is the slice of the client connection the pipeline needs: ordered event
// writes plus a cheap liveness check consulted before every chunk send.
type Sink interface {
	Send(event protocol.Event) error
	Connected() bool
}

// Recorder receives streaming observability signals.
type Recorder interface {
	RecordFirstChunk(ctx context.Context, latency time.Duration)
	RecordAudio(ctx context.Context, chunks, bytes int64)
	RecordJobOutcome(ctx context.Context, outcome string)
}

// Outcome is the terminal state of a stream job.
type Outcome int

const (
	OutcomeComplete Outcome = iota
	OutcomeAborted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeAborted:
		return "aborted"
	default:
		return "failed"
	}
}

// JobResult summarizes one finished stream job.
type JobResult struct {
	Outcome           Outcome
	ChunksSent        int64
	BytesSent         int64
	FirstChunkLatency time.Duration
}

// Latency thresholds are observability classifications, not failures.
const (
	latencyTarget     = 300 * time.Millisecond
	latencyAcceptable = 900 * time.Millisecond
)

// Pipeline converts one resolved text string into ordered audio chunk events
// on a Sink, with deterministic provider fallback and cooperative
// cancellation at chunk boundaries.
type Pipeline struct {
	providers []tts.Provider
	chunker   config.ChunkerConfig
	recorder  Recorder
	logger    *slog.Logger
	clock     func() time.Time
}

func New(providers []tts.Provider, chunker config.ChunkerConfig, recorder Recorder, logger *slog.Logger) *Pipeline {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Pipeline{
		providers: providers,
		chunker:   chunker,
		recorder:  recorder,
		logger:    logger.With(slog.String("component", "audio-pipeline")),
		clock:     time.Now,
	}
}

// job carries the mutable state of one Run invocation.
type job struct {
	sink      Sink
	language  string
	voice     tts.VoiceConfig
	requestID string
	start     time.Time

	// chosen is the streaming provider that delivered audio for this job.
	// Once set, no other provider may be used: switching after the client
	// has heard audio duplicates or garbles playback.
	chosen tts.Provider

	chunkID      int64
	bytesSent    int64
	firstLatency time.Duration
	aborted      bool
	failed       bool
}

// Run streams the text and blocks until the job reaches a terminal state.
// Every failure path that still has a live socket ends in exactly one error
// event; a disconnect ends in silence and an aborted result.
func (p *Pipeline) Run(ctx context.Context, sink Sink, text, language string, voice tts.VoiceConfig, requestID string) JobResult {
	j := &job{
		sink:      sink,
		language:  language,
		voice:     voice,
		requestID: requestID,
		start:     p.clock(),
	}

	_ = sink.Send(protocol.NewEvent(protocol.EventAudioStarted).WithRequestID(requestID))

	sanitized := tts.Sanitize(text, p.chunker.MaxTextLength)
	chunks := tts.SplitText(sanitized, p.chunker)

	for i, chunkText := range chunks {
		if !p.deliverTextChunk(ctx, j, i == 0, chunkText, sanitized) {
			break
		}
	}

	result := p.finish(ctx, j)
	if result.Outcome == OutcomeComplete {
		_ = sink.Send(protocol.NewEvent(protocol.EventAudioComplete).
			WithRequestID(requestID).
			With("total_chunks", j.chunkID).
			With("total_size", j.bytesSent).
			With("first_chunk_latency", j.firstLatency.Milliseconds()))
	}
	return result
}

// deliverTextChunk streams one text chunk. The fallback order applies only
// while the client has received no audio for this job; afterwards the chosen
// provider is the only one allowed, and its failure fails the job. Returns
// false when the job reached a terminal state (including batch completion).
func (p *Pipeline) deliverTextChunk(ctx context.Context, j *job, firstOfJob bool, chunkText, wholeText string) bool {
	if j.chosen != nil {
		_, err := p.streamWithProvider(ctx, j, j.chosen, chunkText)
		if j.aborted {
			return false
		}
		if err != nil {
			p.logProviderFailure(j.chosen, err)
			p.fail(j, "audio stream interrupted, cannot resume safely")
			return false
		}
		return true
	}

	for _, provider := range p.providers {
		if !provider.Streaming() {
			continue
		}
		delivered, err := p.streamWithProvider(ctx, j, provider, chunkText)
		if j.aborted {
			return false
		}
		if err == nil {
			if delivered {
				j.chosen = provider
			}
			return true
		}
		p.logProviderFailure(provider, err)
		if delivered {
			p.fail(j, "audio stream interrupted, cannot resume safely")
			return false
		}
	}

	if firstOfJob && j.bytesSent == 0 && p.deliverBatch(ctx, j, wholeText) {
		// Whole remaining text went out as one final chunk; the job is done.
		return false
	}
	if j.aborted {
		return false
	}

	p.fail(j, "audio generation failed: all providers exhausted")
	return false
}

// streamWithProvider drives one provider stream for one text chunk. The bool
// reports whether any audio from this attempt reached the client.
func (p *Pipeline) streamWithProvider(ctx context.Context, j *job, provider tts.Provider, chunkText string) (bool, error) {
	stream, err := provider.Stream(ctx, chunkText, j.language, j.voice)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	delivered := false
	for {
		res := stream.Next(ctx)
		if res.Err != nil {
			return delivered, res.Err
		}
		if len(res.Audio) > 0 {
			if !p.sendChunk(ctx, j, res.Audio) {
				return delivered, nil
			}
			delivered = true
		}
		if res.Done {
			return delivered, nil
		}
	}
}

func (p *Pipeline) deliverBatch(ctx context.Context, j *job, text string) bool {
	for _, provider := range p.providers {
		if provider.Streaming() {
			continue
		}
		audio, err := provider.SynthesizeWhole(ctx, text, j.language, j.voice)
		if err != nil {
			p.logProviderFailure(provider, err)
			continue
		}
		if len(audio) == 0 {
			continue
		}
		if !p.sendChunk(ctx, j, audio) {
			return false
		}
		p.logger.Info("batch synthesis delivered as single chunk",
			slog.String("provider", provider.Name()),
			slog.Int("bytes", len(audio)))
		return true
	}
	return false
}

// sendChunk is the cancellation point: the connection monitor is consulted
// before every write, and a dead socket aborts the whole job.
func (p *Pipeline) sendChunk(ctx context.Context, j *job, audio []byte) bool {
	if !j.sink.Connected() {
		j.aborted = true
		return false
	}

	j.chunkID++
	isFirst := j.chunkID == 1
	event := protocol.NewEvent(protocol.EventAudioChunk).
		WithRequestID(j.requestID).
		With("chunk_id", j.chunkID).
		With("audio_data", base64.StdEncoding.EncodeToString(audio)).
		With("size", len(audio)).
		With("is_first_chunk", isFirst)

	if err := j.sink.Send(event); err != nil {
		j.chunkID--
		j.aborted = true
		return false
	}

	j.bytesSent += int64(len(audio))
	if isFirst {
		j.firstLatency = p.clock().Sub(j.start)
		p.recorder.RecordFirstChunk(ctx, j.firstLatency)
		p.logLatency(j.firstLatency)
	}
	return true
}

func (p *Pipeline) logProviderFailure(provider tts.Provider, err error) {
	p.logger.Warn("tts provider failed",
		slog.String("provider", provider.Name()),
		slog.String("class", tts.ClassOf(err).String()),
		slog.String("error", err.Error()))
}

func (p *Pipeline) logLatency(latency time.Duration) {
	switch {
	case latency <= latencyTarget:
		p.logger.Info("first audio chunk delivered, target achieved",
			slog.Duration("latency", latency))
	case latency <= latencyAcceptable:
		p.logger.Info("first audio chunk delivered, acceptable latency",
			slog.Duration("latency", latency))
	default:
		p.logger.Warn("first audio chunk delivered, latency needs attention",
			slog.Duration("latency", latency))
	}
}

func (p *Pipeline) fail(j *job, message string) {
	if j.sink.Connected() {
		_ = j.sink.Send(protocol.ErrorEvent(message, j.requestID))
	}
	j.failed = true
}

func (p *Pipeline) finish(ctx context.Context, j *job) JobResult {
	result := JobResult{
		ChunksSent:        j.chunkID,
		BytesSent:         j.bytesSent,
		FirstChunkLatency: j.firstLatency,
	}
	switch {
	case j.aborted:
		result.Outcome = OutcomeAborted
	case j.failed:
		result.Outcome = OutcomeFailed
	default:
		result.Outcome = OutcomeComplete
	}
	p.recorder.RecordAudio(ctx, result.ChunksSent, result.BytesSent)
	p.recorder.RecordJobOutcome(ctx, result.Outcome.String())
	return result
}

type nopRecorder struct{}

func (nopRecorder) RecordFirstChunk(context.Context, time.Duration) {}
func (nopRecorder) RecordAudio(context.Context, int64, int64)      {}
func (nopRecorder) RecordJobOutcome(context.Context, string)       {}
