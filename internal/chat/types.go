package chat

import (
	"context"
	"fmt"

	"github.com/profai/voice-gateway/internal/config"
)

// Answer is a resolved reply to a student question.
type Answer struct {
	Text    string
	Sources []string
}

// Generator answers free-form student questions.
type Generator interface {
	Ask(ctx context.Context, question, language string) (Answer, error)
}

// LessonRequest identifies the sub-topic a lesson should cover and carries
// the raw course material it is built from.
type LessonRequest struct {
	CourseTitle string
	ModuleTitle string
	TopicTitle  string
	RawContent  string
	Language    string
}

// Lesson is spoken-form teaching content. Fallback marks content produced
// from the local template instead of the generator backend.
type Lesson struct {
	Content  string
	Fallback bool
}

// TeachingGenerator turns raw course material into a spoken lesson.
type TeachingGenerator interface {
	GenerateLesson(ctx context.Context, req LessonRequest) (Lesson, error)
}

// NewGenerator builds the chat backend selected by config.
func NewGenerator(cfg config.ChatConfig) (Generator, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockGenerator(), nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("chat mode http requires an endpoint")
		}
		return newHTTPGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown chat mode %q", cfg.Mode)
	}
}

// NewTeachingGenerator builds the lesson backend selected by config.
func NewTeachingGenerator(cfg config.TeachingConfig) (TeachingGenerator, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockTeachingGenerator(), nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("teaching mode http requires an endpoint")
		}
		return newHTTPTeachingGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown teaching mode %q", cfg.Mode)
	}
}
