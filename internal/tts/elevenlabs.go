package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/profai/voice-gateway/internal/config"
)

// elevenLabsProvider streams synthesis over the provider's stream-input
// websocket, one fresh socket per text chunk.
type elevenLabsProvider struct {
	cfg    config.ElevenLabsConfig
	dialer *websocket.Dialer
}

func NewElevenLabsProvider(cfg config.ElevenLabsConfig) Provider {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8192
	}
	return &elevenLabsProvider{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

func (p *elevenLabsProvider) Name() string    { return "elevenlabs" }
func (p *elevenLabsProvider) Enabled() bool   { return p.cfg.APIKey != "" }
func (p *elevenLabsProvider) Streaming() bool { return true }

type elevenLabsInit struct {
	Text          string                  `json:"text"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenLabsText struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
}

type elevenLabsFrame struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (p *elevenLabsProvider) Stream(ctx context.Context, text, language string, voice VoiceConfig) (Stream, error) {
	voiceID := voice.Voice
	if voiceID == "" {
		voiceID = p.cfg.VoiceID
	}
	url := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=mp3_44100_128&optimize_streaming_latency=3",
		p.cfg.Endpoint, voiceID, p.cfg.Model)

	header := http.Header{}
	header.Set("xi-api-key", p.cfg.APIKey)

	ws, _, err := p.dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, classifyErr(p.Name(), ErrClassTransient, fmt.Errorf("dial stream-input: %w", err))
	}

	init := elevenLabsInit{
		Text:          " ",
		VoiceSettings: elevenLabsVoiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	}
	if err := ws.WriteJSON(init); err != nil {
		ws.Close()
		return nil, classifyErr(p.Name(), ErrClassConnectionLost, fmt.Errorf("send init: %w", err))
	}
	if err := ws.WriteJSON(elevenLabsText{Text: text + " ", TryTriggerGeneration: true}); err != nil {
		ws.Close()
		return nil, classifyErr(p.Name(), ErrClassConnectionLost, fmt.Errorf("send text: %w", err))
	}
	// Empty text closes the input side and flushes remaining audio.
	if err := ws.WriteJSON(elevenLabsText{Text: ""}); err != nil {
		ws.Close()
		return nil, classifyErr(p.Name(), ErrClassConnectionLost, fmt.Errorf("send end-of-input: %w", err))
	}

	return &elevenLabsStream{provider: p, ws: ws}, nil
}

func (p *elevenLabsProvider) SynthesizeWhole(ctx context.Context, text, language string, voice VoiceConfig) ([]byte, error) {
	return collectStream(ctx, p, text, language, voice)
}

type elevenLabsStream struct {
	provider *elevenLabsProvider
	ws       *websocket.Conn
	buffer   []byte
	final    bool
	terminal *Result
}

func (s *elevenLabsStream) Next(ctx context.Context) Result {
	if s.terminal != nil {
		return *s.terminal
	}

	for {
		if chunk := s.takeBuffered(); chunk != nil {
			return Result{Audio: chunk}
		}
		if s.final {
			if len(s.buffer) > 0 {
				tail := s.buffer
				s.buffer = nil
				return Result{Audio: tail}
			}
			s.terminal = &Result{Done: true}
			return *s.terminal
		}
		if err := ctx.Err(); err != nil {
			s.terminal = &Result{Err: err}
			return *s.terminal
		}

		var frame elevenLabsFrame
		if err := s.ws.ReadJSON(&frame); err != nil {
			s.terminal = &Result{Err: classifyErr(s.provider.Name(), ErrClassConnectionLost, fmt.Errorf("read frame: %w", err))}
			return *s.terminal
		}
		if frame.Error != "" {
			s.terminal = &Result{Err: classifyErr(s.provider.Name(), classFromMessage(frame.Error), fmt.Errorf("provider error: %s %s", frame.Error, frame.Message))}
			return *s.terminal
		}
		if frame.Audio != "" {
			audio, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err != nil {
				s.terminal = &Result{Err: classifyErr(s.provider.Name(), ErrClassTransient, fmt.Errorf("decode audio: %w", err))}
				return *s.terminal
			}
			s.buffer = append(s.buffer, audio...)
		}
		if frame.IsFinal {
			s.final = true
		}
	}
}

// takeBuffered slices off one client-sized chunk once enough audio is
// buffered; smaller remainders wait for the final frame.
func (s *elevenLabsStream) takeBuffered() []byte {
	size := s.provider.cfg.ChunkSize
	if len(s.buffer) < size {
		return nil
	}
	chunk := s.buffer[:size]
	s.buffer = s.buffer[size:]
	return chunk
}

func (s *elevenLabsStream) Close() error { return s.ws.Close() }

func classFromMessage(msg string) ErrorClass {
	switch msg {
	case "rate_limited", "too_many_concurrent_requests", "system_busy":
		return ErrClassTransient
	case "invalid_text", "max_character_limit_exceeded":
		return ErrClassUnsupportedInput
	default:
		return ErrClassTransient
	}
}

// collectStream drains a provider's own stream to satisfy SynthesizeWhole for
// streaming-first providers.
func collectStream(ctx context.Context, p Provider, text, language string, voice VoiceConfig) ([]byte, error) {
	stream, err := p.Stream(ctx, text, language, voice)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var out []byte
	for {
		res := stream.Next(ctx)
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Audio != nil {
			out = append(out, res.Audio...)
		}
		if res.Done {
			return out, nil
		}
	}
}
