package chat

import (
	"context"
	"strings"
	"time"
)

type mockGenerator struct{}

func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Ask(ctx context.Context, question, language string) (Answer, error) {
	select {
	case <-ctx.Done():
		return Answer{}, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	return Answer{
		Text:    "[mock answer for " + strings.TrimSpace(question) + "]",
		Sources: []string{"General Knowledge"},
	}, nil
}

type mockTeachingGenerator struct{}

func NewMockTeachingGenerator() TeachingGenerator { return &mockTeachingGenerator{} }

func (m *mockTeachingGenerator) GenerateLesson(ctx context.Context, req LessonRequest) (Lesson, error) {
	select {
	case <-ctx.Done():
		return Lesson{}, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	content := "Hello students! Welcome to today's lesson on " + req.TopicTitle +
		". [mock lesson from " + req.ModuleTitle + "] Let's recap what we've learned today. Feel free to ask questions!"
	return Lesson{Content: content}, nil
}
