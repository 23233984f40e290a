package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/profai/voice-gateway/internal/config"
)

type httpGenerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func newHTTPGenerator(cfg config.ChatConfig) *httpGenerator {
	return &httpGenerator{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
	}
}

type askRequest struct {
	Question string `json:"question"`
	Language string `json:"language"`
}

type askResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

func (g *httpGenerator) Ask(ctx context.Context, question, language string) (Answer, error) {
	payload := askRequest{Question: question, Language: language}
	var out askResponse
	if err := postJSON(ctx, g.client, g.endpoint, g.apiKey, payload, &out); err != nil {
		return Answer{}, fmt.Errorf("chat backend: %w", err)
	}
	return Answer{Text: out.Answer, Sources: out.Sources}, nil
}

type httpTeachingGenerator struct {
	endpoint      string
	apiKey        string
	maxRawContent int
	client        *http.Client
}

func newHTTPTeachingGenerator(cfg config.TeachingConfig) *httpTeachingGenerator {
	return &httpTeachingGenerator{
		endpoint:      cfg.Endpoint,
		apiKey:        cfg.APIKey,
		maxRawContent: cfg.MaxRawContent,
		client:        &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
	}
}

type lessonRequest struct {
	CourseTitle string `json:"course_title"`
	ModuleTitle string `json:"module_title"`
	TopicTitle  string `json:"topic_title"`
	RawContent  string `json:"raw_content"`
	Language    string `json:"language"`
}

type lessonResponse struct {
	Content string `json:"content"`
}

func (g *httpTeachingGenerator) GenerateLesson(ctx context.Context, req LessonRequest) (Lesson, error) {
	raw := req.RawContent
	if g.maxRawContent > 0 && len(raw) > g.maxRawContent {
		raw = raw[:g.maxRawContent]
	}
	payload := lessonRequest{
		CourseTitle: req.CourseTitle,
		ModuleTitle: req.ModuleTitle,
		TopicTitle:  req.TopicTitle,
		RawContent:  raw,
		Language:    req.Language,
	}
	var out lessonResponse
	if err := postJSON(ctx, g.client, g.endpoint, g.apiKey, payload, &out); err != nil {
		return Lesson{}, fmt.Errorf("teaching backend: %w", err)
	}
	if out.Content == "" {
		return Lesson{}, fmt.Errorf("teaching backend returned empty content")
	}
	return Lesson{Content: out.Content}, nil
}

func postJSON(ctx context.Context, client *http.Client, endpoint, apiKey string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("returned status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
