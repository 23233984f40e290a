package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type ServerConfig struct {
	Bind           string `yaml:"bind"`
	Port           int    `yaml:"port"`
	MaxMessageSize int64  `yaml:"max_message_size"`
	PingIntervalMS int    `yaml:"ping_interval_ms"`
	PongTimeoutMS  int    `yaml:"pong_timeout_ms"`
}

type SessionConfig struct {
	DefaultLanguage string `yaml:"default_language"`
	ChatTimeoutMS   int    `yaml:"chat_timeout_ms"`
	LessonTimeoutMS int    `yaml:"lesson_timeout_ms"`
	STTTimeoutMS    int    `yaml:"stt_timeout_ms"`
}

type ChatConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Mode      string `yaml:"mode"` // mock, http
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type TeachingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Mode          string `yaml:"mode"` // mock, http
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	TimeoutMS     int    `yaml:"timeout_ms"`
	MaxRawContent int    `yaml:"max_raw_content"`
}

type STTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Mode       string `yaml:"mode"` // mock, http, exec
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	TimeoutMS  int    `yaml:"timeout_ms"`
	Command    string `yaml:"command"`
	ModelPath  string `yaml:"model_path"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type ElevenLabsConfig struct {
	APIKey    string `yaml:"api_key"`
	VoiceID   string `yaml:"voice_id"`
	Model     string `yaml:"model"`
	Endpoint  string `yaml:"endpoint"`
	ChunkSize int    `yaml:"chunk_size"`
}

type SarvamConfig struct {
	APIKey   string `yaml:"api_key"`
	Speaker  string `yaml:"speaker"`
	Endpoint string `yaml:"endpoint"`
}

type ExecSynthConfig struct {
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type ChunkerConfig struct {
	FirstChunkWords int `yaml:"first_chunk_words"`
	FirstChunkBytes int `yaml:"first_chunk_bytes"`
	ChunkBytes      int `yaml:"chunk_bytes"`
	MaxTextLength   int `yaml:"max_text_length"`
}

type TTSConfig struct {
	FallbackOrder []string         `yaml:"fallback_order"`
	ElevenLabs    ElevenLabsConfig `yaml:"elevenlabs"`
	Sarvam        SarvamConfig     `yaml:"sarvam"`
	ExecSynth     ExecSynthConfig  `yaml:"exec_synth"`
	Chunker       ChunkerConfig    `yaml:"chunker"`
}

type CoursesConfig struct {
	CatalogPath string `yaml:"catalog_path"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	ServiceName string           `yaml:"service_name"`
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Session     SessionConfig    `yaml:"session"`
	Chat        ChatConfig       `yaml:"chat"`
	Teaching    TeachingConfig   `yaml:"teaching"`
	STT         STTConfig        `yaml:"stt"`
	TTS         TTSConfig        `yaml:"tts"`
	Courses     CoursesConfig    `yaml:"courses"`
	EventStore  EventStoreConfig `yaml:"event_store"`
}

func Default() Config {
	return Config{
		ServiceName: "voice-gateway",
		Environment: "development",
		Server: ServerConfig{
			Bind:           "0.0.0.0",
			Port:           8765,
			MaxMessageSize: 1 << 20,
			PingIntervalMS: 30000,
			PongTimeoutMS:  20000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Session: SessionConfig{
			DefaultLanguage: "en-IN",
			ChatTimeoutMS:   30000,
			LessonTimeoutMS: 6000,
			STTTimeoutMS:    30000,
		},
		Chat: ChatConfig{
			Enabled:   true,
			Mode:      "mock",
			TimeoutMS: 30000,
		},
		Teaching: TeachingConfig{
			Enabled:       true,
			Mode:          "mock",
			TimeoutMS:     6000,
			MaxRawContent: 8000,
		},
		STT: STTConfig{
			Enabled:    true,
			Mode:       "mock",
			TimeoutMS:  30000,
			SampleRate: 16000,
			Channels:   1,
		},
		TTS: TTSConfig{
			FallbackOrder: []string{"elevenlabs", "sarvam", "exec"},
			ElevenLabs: ElevenLabsConfig{
				VoiceID:   "21m00Tcm4TlvDq8ikWAM",
				Model:     "eleven_flash_v2_5",
				Endpoint:  "wss://api.elevenlabs.io/v1/text-to-speech",
				ChunkSize: 8192,
			},
			Sarvam: SarvamConfig{
				Speaker:  "meera",
				Endpoint: "https://api.sarvam.ai/text-to-speech",
			},
			ExecSynth: ExecSynthConfig{
				SampleRate: 22050,
				Channels:   1,
			},
			Chunker: ChunkerConfig{
				FirstChunkWords: 100,
				FirstChunkBytes: 400,
				ChunkBytes:      2000,
				MaxTextLength:   5000,
			},
		},
		Courses: CoursesConfig{
			CatalogPath: "./data/courses.json",
		},
		EventStore: EventStoreConfig{
			Path:          "./data/voice-gateway-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "VOICEGW_SERVICE_NAME")
	overrideString(&cfg.Environment, "VOICEGW_ENVIRONMENT")
	overrideString(&cfg.Server.Bind, "VOICEGW_SERVER_BIND")
	overrideInt(&cfg.Server.Port, "VOICEGW_SERVER_PORT")
	overrideInt64(&cfg.Server.MaxMessageSize, "VOICEGW_SERVER_MAX_MESSAGE_SIZE")
	overrideInt(&cfg.Server.PingIntervalMS, "VOICEGW_SERVER_PING_INTERVAL_MS")
	overrideInt(&cfg.Server.PongTimeoutMS, "VOICEGW_SERVER_PONG_TIMEOUT_MS")
	overrideString(&cfg.Telemetry.LogLevel, "VOICEGW_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOICEGW_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOICEGW_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOICEGW_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.Session.DefaultLanguage, "VOICEGW_SESSION_DEFAULT_LANGUAGE")
	overrideInt(&cfg.Session.ChatTimeoutMS, "VOICEGW_SESSION_CHAT_TIMEOUT_MS")
	overrideInt(&cfg.Session.LessonTimeoutMS, "VOICEGW_SESSION_LESSON_TIMEOUT_MS")
	overrideInt(&cfg.Session.STTTimeoutMS, "VOICEGW_SESSION_STT_TIMEOUT_MS")
	overrideBool(&cfg.Chat.Enabled, "VOICEGW_CHAT_ENABLED")
	overrideString(&cfg.Chat.Mode, "VOICEGW_CHAT_MODE")
	overrideString(&cfg.Chat.Endpoint, "VOICEGW_CHAT_ENDPOINT")
	overrideString(&cfg.Chat.APIKey, "VOICEGW_CHAT_API_KEY")
	overrideInt(&cfg.Chat.TimeoutMS, "VOICEGW_CHAT_TIMEOUT_MS")
	overrideBool(&cfg.Teaching.Enabled, "VOICEGW_TEACHING_ENABLED")
	overrideString(&cfg.Teaching.Mode, "VOICEGW_TEACHING_MODE")
	overrideString(&cfg.Teaching.Endpoint, "VOICEGW_TEACHING_ENDPOINT")
	overrideString(&cfg.Teaching.APIKey, "VOICEGW_TEACHING_API_KEY")
	overrideInt(&cfg.Teaching.TimeoutMS, "VOICEGW_TEACHING_TIMEOUT_MS")
	overrideInt(&cfg.Teaching.MaxRawContent, "VOICEGW_TEACHING_MAX_RAW_CONTENT")
	overrideBool(&cfg.STT.Enabled, "VOICEGW_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "VOICEGW_STT_MODE")
	overrideString(&cfg.STT.Endpoint, "VOICEGW_STT_ENDPOINT")
	overrideString(&cfg.STT.APIKey, "VOICEGW_STT_API_KEY")
	overrideInt(&cfg.STT.TimeoutMS, "VOICEGW_STT_TIMEOUT_MS")
	overrideString(&cfg.STT.Command, "VOICEGW_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "VOICEGW_STT_MODEL_PATH")
	overrideInt(&cfg.STT.SampleRate, "VOICEGW_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "VOICEGW_STT_CHANNELS")
	overrideStringSlice(&cfg.TTS.FallbackOrder, "VOICEGW_TTS_FALLBACK_ORDER")
	overrideString(&cfg.TTS.ElevenLabs.APIKey, "VOICEGW_TTS_ELEVENLABS_API_KEY")
	overrideString(&cfg.TTS.ElevenLabs.VoiceID, "VOICEGW_TTS_ELEVENLABS_VOICE_ID")
	overrideString(&cfg.TTS.ElevenLabs.Model, "VOICEGW_TTS_ELEVENLABS_MODEL")
	overrideString(&cfg.TTS.ElevenLabs.Endpoint, "VOICEGW_TTS_ELEVENLABS_ENDPOINT")
	overrideInt(&cfg.TTS.ElevenLabs.ChunkSize, "VOICEGW_TTS_ELEVENLABS_CHUNK_SIZE")
	overrideString(&cfg.TTS.Sarvam.APIKey, "VOICEGW_TTS_SARVAM_API_KEY")
	overrideString(&cfg.TTS.Sarvam.Speaker, "VOICEGW_TTS_SARVAM_SPEAKER")
	overrideString(&cfg.TTS.Sarvam.Endpoint, "VOICEGW_TTS_SARVAM_ENDPOINT")
	overrideString(&cfg.TTS.ExecSynth.Command, "VOICEGW_TTS_EXEC_COMMAND")
	overrideInt(&cfg.TTS.ExecSynth.SampleRate, "VOICEGW_TTS_EXEC_SAMPLE_RATE")
	overrideInt(&cfg.TTS.ExecSynth.Channels, "VOICEGW_TTS_EXEC_CHANNELS")
	overrideInt(&cfg.TTS.Chunker.FirstChunkWords, "VOICEGW_TTS_FIRST_CHUNK_WORDS")
	overrideInt(&cfg.TTS.Chunker.FirstChunkBytes, "VOICEGW_TTS_FIRST_CHUNK_BYTES")
	overrideInt(&cfg.TTS.Chunker.ChunkBytes, "VOICEGW_TTS_CHUNK_BYTES")
	overrideInt(&cfg.TTS.Chunker.MaxTextLength, "VOICEGW_TTS_MAX_TEXT_LENGTH")
	overrideString(&cfg.Courses.CatalogPath, "VOICEGW_COURSES_CATALOG_PATH")
	overrideString(&cfg.EventStore.Path, "VOICEGW_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "VOICEGW_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "VOICEGW_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "VOICEGW_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "VOICEGW_EVENT_STORE_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if cfg.Server.MaxMessageSize <= 0 {
		return errors.New("server.max_message_size must be positive")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Session.DefaultLanguage == "" {
		return errors.New("session.default_language must not be empty")
	}
	if cfg.Session.ChatTimeoutMS <= 0 || cfg.Session.LessonTimeoutMS <= 0 || cfg.Session.STTTimeoutMS <= 0 {
		return errors.New("session timeouts must be positive")
	}
	if len(cfg.TTS.FallbackOrder) == 0 {
		return errors.New("tts.fallback_order must name at least one provider")
	}
	for _, name := range cfg.TTS.FallbackOrder {
		switch name {
		case "elevenlabs", "sarvam", "exec", "mock":
		default:
			return fmt.Errorf("tts.fallback_order contains unknown provider %q", name)
		}
	}
	if cfg.TTS.Chunker.FirstChunkBytes <= 0 {
		return errors.New("tts.chunker.first_chunk_bytes must be positive")
	}
	if cfg.TTS.Chunker.ChunkBytes < cfg.TTS.Chunker.FirstChunkBytes {
		return errors.New("tts.chunker.chunk_bytes must be >= first_chunk_bytes")
	}
	if cfg.TTS.Chunker.FirstChunkWords <= 0 {
		return errors.New("tts.chunker.first_chunk_words must be positive")
	}
	if cfg.Chat.Enabled {
		switch cfg.Chat.Mode {
		case "mock", "http":
		default:
			return errors.New("chat.mode must be one of mock|http")
		}
		if cfg.Chat.Mode == "http" && cfg.Chat.Endpoint == "" {
			return errors.New("chat.endpoint must be set when mode=http")
		}
	}
	if cfg.Teaching.Enabled {
		switch cfg.Teaching.Mode {
		case "mock", "http":
		default:
			return errors.New("teaching.mode must be one of mock|http")
		}
		if cfg.Teaching.Mode == "http" && cfg.Teaching.Endpoint == "" {
			return errors.New("teaching.endpoint must be set when mode=http")
		}
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "mock", "http", "exec":
		default:
			return errors.New("stt.mode must be one of mock|http|exec")
		}
		if cfg.STT.Mode == "http" && cfg.STT.Endpoint == "" {
			return errors.New("stt.endpoint must be set when mode=http")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	return nil
}
