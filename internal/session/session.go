package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/profai/voice-gateway/internal/chat"
	"github.com/profai/voice-gateway/internal/config"
	"github.com/profai/voice-gateway/internal/courses"
	"github.com/profai/voice-gateway/internal/eventstore"
	"github.com/profai/voice-gateway/internal/pipeline"
	"github.com/profai/voice-gateway/internal/protocol"
	"github.com/profai/voice-gateway/internal/stt"
	"github.com/profai/voice-gateway/internal/transport"
	"github.com/profai/voice-gateway/internal/tts"
)

// Conn is the slice of the websocket connection a session drives.
type Conn interface {
	ClientID() string
	Read() ([]byte, error)
	Send(event protocol.Event) error
	Connected() bool
	LastClosure() transport.Closure
	Close() error
}

// AudioStreamer runs one blocking text-to-audio stream job.
type AudioStreamer interface {
	Run(ctx context.Context, sink pipeline.Sink, text, language string, voice tts.VoiceConfig, requestID string) pipeline.JobResult
}

// Metrics receives session-level observability signals.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	RecordRequest(ctx context.Context, kind string)
	RecordError(ctx context.Context, kind string)
}

// Timeline persists the session history.
type Timeline interface {
	RecordSession(ctx context.Context, sessionID, language string) error
	RecordRequest(ctx context.Context, rec eventstore.RequestRecord) error
}

// Deps bundles the collaborators a session dispatches to. Nil fields mark
// the service as unavailable; the session reports that per request instead
// of failing at startup.
type Deps struct {
	Chat       chat.Generator
	Teaching   chat.TeachingGenerator
	Recognizer stt.Recognizer
	Catalog    *courses.Catalog
	Pipeline   AudioStreamer
	Metrics    Metrics
	Timeline   Timeline
}

type counters struct {
	totalRequests     int64
	chatRequests      int64
	classRequests     int64
	audioRequests     int64
	sttRequests       int64
	errors            int64
	totalResponseTime time.Duration
}

// Session owns one client connection. Requests are handled strictly in
// arrival order; a request runs to completion before the next message is
// read.
type Session struct {
	conn   Conn
	cfg    config.SessionConfig
	deps   Deps
	logger *slog.Logger
	clock  func() time.Time

	language string
	started  time.Time
	messages int64
	stats    counters
}

func New(conn Conn, cfg config.SessionConfig, deps Deps, logger *slog.Logger) *Session {
	return &Session{
		conn:     conn,
		cfg:      cfg,
		deps:     deps,
		logger:   logger.With(slog.String("component", "session"), slog.String("client_id", conn.ClientID())),
		clock:    time.Now,
		language: cfg.DefaultLanguage,
	}
}

// Run serves the connection until the client disconnects or ctx is
// cancelled.
func (s *Session) Run(ctx context.Context) {
	s.started = s.clock()
	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionOpened()
		defer s.deps.Metrics.SessionClosed()
	}
	if s.deps.Timeline != nil {
		if err := s.deps.Timeline.RecordSession(ctx, s.conn.ClientID(), s.language); err != nil {
			s.logger.Warn("session timeline write failed", slog.String("error", err.Error()))
		}
	}

	_ = s.conn.Send(protocol.NewEvent(protocol.EventConnectionReady).
		With("message", "voice gateway connected").
		With("services", map[string]bool{
			"chat":     s.deps.Chat != nil,
			"teaching": s.deps.Teaching != nil,
			"stt":      s.deps.Recognizer != nil,
			"audio":    s.deps.Pipeline != nil,
		}))

	for {
		if ctx.Err() != nil {
			break
		}
		payload, err := s.conn.Read()
		if err != nil {
			// 1000/1001 closes are ordinary; anything else counts as a
			// session error.
			if s.conn.LastClosure() == transport.ClosureAbnormal {
				s.stats.errors++
			}
			break
		}
		s.messages++

		var msg protocol.ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = s.conn.Send(protocol.ErrorEvent("invalid JSON message", ""))
			continue
		}
		if msg.Type == "" {
			_ = s.conn.Send(protocol.ErrorEvent("message type is required", msg.RequestID))
			continue
		}
		s.dispatch(ctx, msg)
	}

	s.sendClosingSummary()
	_ = s.conn.Close()
}

// dispatch routes one message. Handler failures are contained: the client
// gets an error event and the read loop keeps going.
func (s *Session) dispatch(ctx context.Context, msg protocol.ClientMessage) {
	s.stats.totalRequests++
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordRequest(ctx, msg.Type)
	}
	start := s.clock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked",
				slog.String("message_type", msg.Type),
				slog.Any("panic", r))
			s.failRequest(ctx, msg, "internal server error")
		}
		s.stats.totalResponseTime += s.clock().Sub(start)
	}()

	switch msg.Type {
	case protocol.TypePing:
		s.handlePing()
	case protocol.TypeChatWithAudio:
		s.handleChat(ctx, msg, start)
	case protocol.TypeStartClass:
		s.handleStartClass(ctx, msg, start)
	case protocol.TypeAudioOnly:
		s.handleAudioOnly(ctx, msg, start)
	case protocol.TypeTranscribeAudio:
		s.handleTranscribe(ctx, msg, start)
	case protocol.TypeSetLanguage:
		s.handleSetLanguage(msg)
	case protocol.TypeGetMetrics:
		s.handleGetMetrics(msg)
	default:
		s.failRequest(ctx, msg, "unknown message type: "+msg.Type)
	}
}

func (s *Session) handlePing() {
	_ = s.conn.Send(protocol.NewEvent(protocol.EventPong).
		With("message", "connection alive").
		With("server_time", unixSeconds(s.clock())))
}

func (s *Session) handleChat(ctx context.Context, msg protocol.ClientMessage, start time.Time) {
	s.stats.chatRequests++
	if msg.Message == "" {
		s.failRequest(ctx, msg, "message is required")
		return
	}
	if s.deps.Chat == nil || s.deps.Pipeline == nil {
		s.failRequest(ctx, msg, "chat service not available")
		return
	}
	language := s.requestLanguage(msg)

	_ = s.conn.Send(protocol.NewEvent(protocol.EventProcessingStarted).
		WithRequestID(msg.RequestID).
		With("message", "generating response"))

	askCtx, cancel := context.WithTimeout(ctx, msForDuration(s.cfg.ChatTimeoutMS))
	answer, err := s.deps.Chat.Ask(askCtx, msg.Message, language)
	cancel()
	if err != nil {
		s.logger.Warn("chat request failed", slog.String("error", err.Error()))
		if errors.Is(err, context.DeadlineExceeded) {
			s.failRequest(ctx, msg, "response generation timeout, please try again")
		} else {
			s.failRequest(ctx, msg, "chat request failed")
		}
		return
	}

	_ = s.conn.Send(protocol.NewEvent(protocol.EventTextResponse).
		WithRequestID(msg.RequestID).
		With("text", answer.Text).
		With("metadata", map[string]any{"sources": answer.Sources}))

	result := s.deps.Pipeline.Run(ctx, s.conn, answer.Text, language, tts.VoiceConfig{}, msg.RequestID)
	s.finishAudioRequest(ctx, msg, result, start)
}

func (s *Session) handleStartClass(ctx context.Context, msg protocol.ClientMessage, start time.Time) {
	s.stats.classRequests++
	if s.deps.Catalog == nil || s.deps.Pipeline == nil {
		s.failRequest(ctx, msg, "teaching service not available")
		return
	}
	language := s.requestLanguage(msg)

	_ = s.conn.Send(protocol.NewEvent(protocol.EventClassStarting).
		WithRequestID(msg.RequestID).
		With("message", "loading course content").
		With("course_id", msg.CourseID).
		With("module_index", msg.ModuleIndex).
		With("sub_topic_index", msg.SubTopicIndex))

	selection, err := s.deps.Catalog.Resolve(msg.CourseID, msg.ModuleIndex, msg.SubTopicIndex)
	if err != nil {
		s.failRequest(ctx, msg, err.Error())
		return
	}

	_ = s.conn.Send(protocol.NewEvent(protocol.EventCourseInfo).
		WithRequestID(msg.RequestID).
		With("module_title", selection.Module.Title).
		With("sub_topic_title", selection.SubTopic.Title).
		With("message", "content loaded, generating teaching material"))

	lessonReq := chat.LessonRequest{
		CourseTitle: selection.Course.Title,
		ModuleTitle: selection.Module.Title,
		TopicTitle:  selection.SubTopic.Title,
		RawContent:  selection.RawContent(),
		Language:    language,
	}
	var lesson chat.Lesson
	if s.deps.Teaching == nil {
		lesson = chat.FallbackLesson(lessonReq)
	} else {
		lessonCtx, cancel := context.WithTimeout(ctx, msForDuration(s.cfg.LessonTimeoutMS))
		lesson = chat.LessonOrFallback(lessonCtx, s.deps.Teaching, lessonReq, s.logger)
		cancel()
	}

	readyMsg := "teaching content ready, starting audio"
	if lesson.Fallback {
		readyMsg = "using fallback content, starting audio"
	}
	_ = s.conn.Send(protocol.NewEvent(protocol.EventTeachingContent).
		WithRequestID(msg.RequestID).
		With("content", contentPreview(lesson.Content)).
		With("content_length", len(lesson.Content)).
		With("message", readyMsg))

	result := s.deps.Pipeline.Run(ctx, s.conn, lesson.Content, language, tts.VoiceConfig{}, msg.RequestID)
	s.finishAudioRequest(ctx, msg, result, start)
}

func (s *Session) handleAudioOnly(ctx context.Context, msg protocol.ClientMessage, start time.Time) {
	s.stats.audioRequests++
	if msg.Text == "" {
		s.failRequest(ctx, msg, "text is required")
		return
	}
	if s.deps.Pipeline == nil {
		s.failRequest(ctx, msg, "audio service not available")
		return
	}

	result := s.deps.Pipeline.Run(ctx, s.conn, msg.Text, s.requestLanguage(msg), tts.VoiceConfig{}, msg.RequestID)
	s.finishAudioRequest(ctx, msg, result, start)
}

func (s *Session) handleTranscribe(ctx context.Context, msg protocol.ClientMessage, start time.Time) {
	s.stats.sttRequests++
	if s.deps.Recognizer == nil {
		s.failRequest(ctx, msg, "transcription service not available")
		return
	}
	if msg.AudioData == "" {
		s.failRequest(ctx, msg, "audio data is required")
		return
	}
	audio, err := base64.StdEncoding.DecodeString(msg.AudioData)
	if err != nil {
		s.failRequest(ctx, msg, "invalid audio data encoding")
		return
	}

	sttCtx, cancel := context.WithTimeout(ctx, msForDuration(s.cfg.STTTimeoutMS))
	result, err := s.deps.Recognizer.Transcribe(sttCtx, audio, s.requestLanguage(msg))
	cancel()
	if err != nil {
		s.logger.Warn("transcription failed", slog.String("error", err.Error()))
		if errors.Is(err, context.DeadlineExceeded) {
			s.failRequest(ctx, msg, "transcription timeout")
		} else {
			s.failRequest(ctx, msg, "transcription failed")
		}
		return
	}

	_ = s.conn.Send(protocol.NewEvent(protocol.EventTranscription).
		WithRequestID(msg.RequestID).
		With("transcribed_text", result.Text))
	s.recordTimeline(ctx, msg, "complete", start)
}

func (s *Session) handleSetLanguage(msg protocol.ClientMessage) {
	if msg.Language == "" {
		_ = s.conn.Send(protocol.ErrorEvent("language is required", msg.RequestID))
		s.stats.errors++
		return
	}
	s.language = msg.Language
	if s.deps.Timeline != nil {
		if err := s.deps.Timeline.RecordSession(context.Background(), s.conn.ClientID(), s.language); err != nil {
			s.logger.Warn("session timeline write failed", slog.String("error", err.Error()))
		}
	}
	_ = s.conn.Send(protocol.NewEvent(protocol.EventLanguageSet).
		WithRequestID(msg.RequestID).
		With("language", msg.Language).
		With("message", "language set to "+msg.Language))
}

func (s *Session) handleGetMetrics(msg protocol.ClientMessage) {
	avg := time.Duration(0)
	if s.stats.totalRequests > 0 {
		avg = s.stats.totalResponseTime / time.Duration(s.stats.totalRequests)
	}
	_ = s.conn.Send(protocol.NewEvent(protocol.EventMetricsResponse).
		WithRequestID(msg.RequestID).
		With("metrics", map[string]any{
			"session_metrics": map[string]any{
				"session_duration": s.clock().Sub(s.started).Seconds(),
				"client_id":        s.conn.ClientID(),
				"current_language": s.language,
				"message_count":    s.messages,
			},
			"performance_metrics": map[string]any{
				"total_requests":       s.stats.totalRequests,
				"chat_requests":        s.stats.chatRequests,
				"class_requests":       s.stats.classRequests,
				"audio_requests":       s.stats.audioRequests,
				"stt_requests":         s.stats.sttRequests,
				"errors":               s.stats.errors,
				"avg_response_time_ms": avg.Milliseconds(),
			},
		}))
}

// finishAudioRequest folds a stream job result into the session counters and
// the timeline. The pipeline already told the client about failures.
func (s *Session) finishAudioRequest(ctx context.Context, msg protocol.ClientMessage, result pipeline.JobResult, start time.Time) {
	if result.Outcome == pipeline.OutcomeFailed {
		s.stats.errors++
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordError(ctx, msg.Type)
		}
	}
	s.recordTimeline(ctx, msg, result.Outcome.String(), start)
}

func (s *Session) failRequest(ctx context.Context, msg protocol.ClientMessage, message string) {
	s.stats.errors++
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordError(ctx, msg.Type)
	}
	_ = s.conn.Send(protocol.ErrorEvent(message, msg.RequestID))
}

func (s *Session) recordTimeline(ctx context.Context, msg protocol.ClientMessage, outcome string, start time.Time) {
	if s.deps.Timeline == nil {
		return
	}
	rec := eventstore.RequestRecord{
		SessionID: s.conn.ClientID(),
		RequestID: msg.RequestID,
		Kind:      msg.Type,
		Outcome:   outcome,
		LatencyMS: s.clock().Sub(start).Milliseconds(),
	}
	if err := s.deps.Timeline.RecordRequest(ctx, rec); err != nil {
		s.logger.Warn("request timeline write failed", slog.String("error", err.Error()))
	}
}

// sendClosingSummary is best-effort: the socket is usually already gone.
func (s *Session) sendClosingSummary() {
	_ = s.conn.Send(protocol.NewEvent(protocol.EventConnectionClosing).
		With("session_metrics", map[string]any{
			"total_messages":   s.messages,
			"session_duration": s.clock().Sub(s.started).Seconds(),
		}))
}

func (s *Session) requestLanguage(msg protocol.ClientMessage) string {
	if msg.Language != "" {
		return msg.Language
	}
	return s.language
}

func contentPreview(content string) string {
	if len(content) > 500 {
		return content[:500] + "..."
	}
	return content
}

func msForDuration(ms int) time.Duration {
	if ms <= 0 {
		return 30 * time.Second
	}
	return time.Duration(ms) * time.Millisecond
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000.0
}
