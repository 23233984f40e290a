package protocol

// Wire format: every message is one JSON object with a required "type" field.
// Outbound events additionally carry client_id and a server timestamp, stamped
// by the transport just before the write.

// Inbound message types.
const (
	TypePing            = "ping"
	TypeChatWithAudio   = "chat_with_audio"
	TypeStartClass      = "start_class"
	TypeAudioOnly       = "audio_only"
	TypeTranscribeAudio = "transcribe_audio"
	TypeSetLanguage     = "set_language"
	TypeGetMetrics      = "get_metrics"
)

// Outbound event types.
const (
	EventConnectionReady   = "connection_ready"
	EventConnectionClosing = "connection_closing"
	EventPong              = "pong"
	EventProcessingStarted = "processing_started"
	EventClassStarting     = "class_starting"
	EventCourseInfo        = "course_info"
	EventTextResponse      = "text_response"
	EventTeachingContent   = "teaching_content"
	EventAudioStarted      = "audio_generation_started"
	EventAudioChunk        = "audio_chunk"
	EventAudioComplete     = "audio_generation_complete"
	EventTranscription     = "transcription_complete"
	EventLanguageSet       = "language_set"
	EventMetricsResponse   = "metrics_response"
	EventError             = "error"
)

// ClientMessage is the decoded inbound envelope. Fields beyond Type and
// RequestID are populated only for the message kinds that use them.
type ClientMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`

	// chat_with_audio
	Message string `json:"message,omitempty"`

	// start_class
	CourseID      string `json:"course_id,omitempty"`
	ModuleIndex   int    `json:"module_index"`
	SubTopicIndex int    `json:"sub_topic_index"`

	// audio_only
	Text string `json:"text,omitempty"`

	// transcribe_audio, base64-encoded
	AudioData string `json:"audio_data,omitempty"`

	// chat_with_audio, start_class, audio_only, transcribe_audio, set_language
	Language string `json:"language,omitempty"`
}

// Event is a single outbound message. The map form keeps the envelope open
// for kind-specific fields while the transport stamps client_id/timestamp.
type Event map[string]any

func NewEvent(eventType string) Event {
	return Event{"type": eventType}
}

func (e Event) WithRequestID(requestID string) Event {
	if requestID != "" {
		e["request_id"] = requestID
	}
	return e
}

// ErrorEvent builds the single error shape every failure path reports.
func ErrorEvent(message, requestID string) Event {
	return NewEvent(EventError).WithRequestID(requestID).With("error", message)
}

func (e Event) With(key string, value any) Event {
	e[key] = value
	return e
}
