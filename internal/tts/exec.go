package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/profai/voice-gateway/internal/config"
)

// execProvider shells out to a local synthesis command, JSON request on stdin
// and line-delimited JSON chunks on stdout. Batch-only last resort: no
// network, no credentials, works when every remote provider is down.
type execProvider struct {
	cmd        []string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	Language   string `json:"language"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

func NewExecProvider(cfg config.ExecSynthConfig) (Provider, error) {
	if cfg.Command == "" {
		// Construct disabled so the registry can skip it.
		return &execProvider{sampleRate: cfg.SampleRate, channels: cfg.Channels}, nil
	}
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command empty")
	}
	return &execProvider{cmd: args, sampleRate: cfg.SampleRate, channels: cfg.Channels}, nil
}

func (e *execProvider) Name() string    { return "exec" }
func (e *execProvider) Enabled() bool   { return len(e.cmd) > 0 }
func (e *execProvider) Streaming() bool { return false }

func (e *execProvider) Stream(ctx context.Context, text, language string, voice VoiceConfig) (Stream, error) {
	audio, err := e.SynthesizeWhole(ctx, text, language, voice)
	if err != nil {
		return nil, err
	}
	return &sliceStream{audio: audio, chunkSize: 8192}, nil
}

func (e *execProvider) SynthesizeWhole(ctx context.Context, text, language string, voice VoiceConfig) ([]byte, error) {
	// One subprocess at a time; local synths rarely tolerate concurrency.
	e.mu.Lock()
	defer e.mu.Unlock()

	payload := execRequest{
		Text:       text,
		Language:   language,
		Voice:      voice.Voice,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal synth request: %w", err)
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, classifyErr(e.Name(), ErrClassTransient, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, classifyErr(e.Name(), ErrClassTransient, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, classifyErr(e.Name(), ErrClassTransient, fmt.Errorf("start synth command: %w", err))
	}

	if _, err := stdin.Write(data); err != nil {
		cmd.Wait()
		return nil, classifyErr(e.Name(), ErrClassTransient, err)
	}
	stdin.Close()

	var audio []byte
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			cmd.Wait()
			return nil, classifyErr(e.Name(), ErrClassTransient, fmt.Errorf("decode synth output: %w", err))
		}
		pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
		if err != nil {
			cmd.Wait()
			return nil, classifyErr(e.Name(), ErrClassTransient, fmt.Errorf("decode synth audio: %w", err))
		}
		audio = append(audio, pcm...)
		if resp.Final {
			break
		}
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyErr(e.Name(), ErrClassTransient, fmt.Errorf("synth command: %w", err))
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, classifyErr(e.Name(), ErrClassTransient, scanErr)
	}
	if len(audio) == 0 {
		return nil, classifyErr(e.Name(), ErrClassUnsupportedInput, fmt.Errorf("synth command produced no audio"))
	}
	return audio, nil
}
