package chat

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

var (
	markdownHeader = regexp.MustCompile(`#+ `)
	newlineRuns    = regexp.MustCompile(`\n+`)
	spaceRuns      = regexp.MustCompile(`\s+`)
)

const fallbackExcerptLimit = 800

// FallbackLesson builds a templated lesson directly from the raw course
// material, for when the teaching backend is unavailable or times out.
func FallbackLesson(req LessonRequest) Lesson {
	cleaned := markdownHeader.ReplaceAllString(req.RawContent, "")
	cleaned = newlineRuns.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(spaceRuns.ReplaceAllString(cleaned, " "))

	if len(cleaned) > fallbackExcerptLimit {
		truncated := cleaned[:fallbackExcerptLimit]
		// Prefer a sentence boundary unless it cuts away too much.
		if last := strings.LastIndex(truncated, "."); last > 600 {
			cleaned = truncated[:last+1]
		} else {
			cleaned = truncated + "."
		}
	}

	content := fmt.Sprintf(
		"Welcome to today's lesson on %s from the module %s. Let me explain this important topic to you. %s This covers the key concepts you need to understand about %s. I hope this explanation helps you grasp the important points. Please feel free to ask if you have any questions about this topic. Thank you for your attention.",
		req.TopicTitle, req.ModuleTitle, cleaned, req.TopicTitle)

	return Lesson{Content: content, Fallback: true}
}

// LessonOrFallback asks the generator and substitutes the templated lesson
// when it fails, so a lesson request always produces spoken content.
func LessonOrFallback(ctx context.Context, g TeachingGenerator, req LessonRequest, logger *slog.Logger) Lesson {
	lesson, err := g.GenerateLesson(ctx, req)
	if err != nil {
		logger.Warn("lesson generation failed, using templated fallback",
			slog.String("topic", req.TopicTitle),
			slog.String("error", err.Error()))
		return FallbackLesson(req)
	}
	return lesson
}
