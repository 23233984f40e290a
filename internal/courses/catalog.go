package courses

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

type SubTopic struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Module struct {
	Title     string     `json:"title"`
	SubTopics []SubTopic `json:"sub_topics"`
}

type Course struct {
	CourseID string   `json:"course_id"`
	Title    string   `json:"course_title"`
	Modules  []Module `json:"modules"`
}

// Catalog holds the course material lessons are taught from. It is loaded
// once at startup and read-only afterwards.
type Catalog struct {
	courses []Course
	logger  *slog.Logger
}

// Load reads the catalog file, accepting both the single-course object form
// and the multi-course array form. A missing or unreadable file yields the
// built-in sample course so a class can always start.
func Load(path string, logger *slog.Logger) *Catalog {
	logger = logger.With(slog.String("component", "courses"))
	cat := &Catalog{logger: logger}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("course catalog unavailable, using built-in sample course",
			slog.String("path", path),
			slog.String("error", err.Error()))
		cat.courses = []Course{fallbackCourse()}
		return cat
	}

	var many []Course
	if err := json.Unmarshal(data, &many); err == nil && len(many) > 0 {
		cat.courses = many
	} else {
		var one Course
		if err := json.Unmarshal(data, &one); err == nil && one.Title != "" {
			cat.courses = []Course{one}
		}
	}
	if len(cat.courses) == 0 {
		logger.Warn("course catalog has no usable courses, using built-in sample course",
			slog.String("path", path))
		cat.courses = []Course{fallbackCourse()}
		return cat
	}

	logger.Info("course catalog loaded",
		slog.String("path", path),
		slog.Int("courses", len(cat.courses)))
	return cat
}

// Courses lists the loaded catalog.
func (c *Catalog) Courses() []Course { return c.courses }

// Course returns the course with the given id, or the first course when the
// id is empty or unknown.
func (c *Catalog) Course(courseID string) Course {
	if courseID != "" {
		for _, course := range c.courses {
			if course.CourseID == courseID {
				return course
			}
		}
		c.logger.Warn("course not found, using first course", slog.String("course_id", courseID))
	}
	return c.courses[0]
}

// Selection is one resolved sub-topic within a course.
type Selection struct {
	Course        Course
	Module        Module
	SubTopic      SubTopic
	ModuleIndex   int
	SubTopicIndex int
}

// Resolve validates the indices against the selected course.
func (c *Catalog) Resolve(courseID string, moduleIndex, subTopicIndex int) (Selection, error) {
	course := c.Course(courseID)
	if moduleIndex < 0 || moduleIndex >= len(course.Modules) {
		return Selection{}, fmt.Errorf("module %d not found (available: 0-%d)", moduleIndex, len(course.Modules)-1)
	}
	module := course.Modules[moduleIndex]
	if subTopicIndex < 0 || subTopicIndex >= len(module.SubTopics) {
		return Selection{}, fmt.Errorf("sub-topic %d not found (available: 0-%d)", subTopicIndex, len(module.SubTopics)-1)
	}
	return Selection{
		Course:        course,
		Module:        module,
		SubTopic:      module.SubTopics[subTopicIndex],
		ModuleIndex:   moduleIndex,
		SubTopicIndex: subTopicIndex,
	}, nil
}

// Raw content longer than this is cut before lesson generation.
const maxRawContent = 8000

// RawContent returns the teaching material for the selection, substituting
// a one-line description when the sub-topic has none.
func (s Selection) RawContent() string {
	content := s.SubTopic.Content
	if content == "" {
		return fmt.Sprintf("This topic covers %s as part of %s.", s.SubTopic.Title, s.Module.Title)
	}
	if len(content) > maxRawContent {
		content = content[:7500] + "..."
	}
	return content
}

func fallbackCourse() Course {
	return Course{
		CourseID: "fallback_course",
		Title:    "Sample Educational Course",
		Modules: []Module{
			{
				Title: "Introduction to Learning",
				SubTopics: []SubTopic{
					{
						Title:   "Getting Started",
						Content: "Welcome to this educational journey. In this introduction, we will explore the fundamentals of learning and how to make the most of your educational experience. Learning is a continuous process that involves acquiring new knowledge, skills, and understanding through study, experience, or teaching.",
					},
					{
						Title:   "Effective Study Habits",
						Content: "Developing effective study habits is essential for academic success. Set aside regular time for study, find a quiet environment, take notes while learning, and review material frequently. Spaced repetition and active recall are proven techniques that improve long-term retention.",
					},
				},
			},
		},
	}
}
