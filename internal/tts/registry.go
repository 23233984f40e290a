package tts

import (
	"fmt"
	"log/slog"

	"github.com/profai/voice-gateway/internal/config"
)

// BuildProviders constructs the configured fallback chain. The order is fixed
// at startup; adapters without credentials are constructed disabled and
// skipped here, with a log line so operators can see what is actually live.
func BuildProviders(cfg config.TTSConfig, logger *slog.Logger) ([]Provider, error) {
	log := logger.With(slog.String("component", "tts-registry"))

	var providers []Provider
	for _, name := range cfg.FallbackOrder {
		var (
			p   Provider
			err error
		)
		switch name {
		case "elevenlabs":
			p = NewElevenLabsProvider(cfg.ElevenLabs)
		case "sarvam":
			p = NewSarvamProvider(cfg.Sarvam)
		case "exec":
			p, err = NewExecProvider(cfg.ExecSynth)
		case "mock":
			p = NewMockProvider()
		default:
			return nil, fmt.Errorf("unknown tts provider %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("construct %s provider: %w", name, err)
		}
		if !p.Enabled() {
			log.Warn("tts provider disabled, skipping", slog.String("provider", name))
			continue
		}
		log.Info("tts provider enabled",
			slog.String("provider", name),
			slog.Bool("streaming", p.Streaming()))
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no tts providers enabled")
	}
	return providers, nil
}
