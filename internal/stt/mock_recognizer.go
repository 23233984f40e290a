package stt

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, audio []byte, language string) (TranscriptResult, error) {
	return TranscriptResult{
		Text:       fmt.Sprintf("[%s transcript length=%d]", language, len(audio)),
		Confidence: 0,
	}, nil
}
