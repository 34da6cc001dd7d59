package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

// MaxExamTextRunes is how much extracted exam text is sent for structuring.
// Anything beyond it is dropped silently.
const MaxExamTextRunes = 15000

// MaxAnswerRunes caps a student answer before it is sent for grading.
const MaxAnswerRunes = 10000

// DefaultMarkScheme stands in for an empty mark scheme.
const DefaultMarkScheme = "Use best judgement based on the question."

//go:embed templates/*.txt
var Templates embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	examTextRegex           = regexp.MustCompile(`(?i)</?\s*exam-text\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict is a strict grading variant.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient is a lenient grading variant.
	PromptLenient PromptVariant = "lenient"
)

var variants = []PromptVariant{PromptStrict, PromptStandard, PromptLenient}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	for _, known := range variants {
		if PromptVariant(v) == known {
			return true
		}
	}
	return false
}

// Prompt is a system/user prompt pair ready to send.
type Prompt struct {
	System string
	User   string
}

// StructureData holds template data for the structuring prompt.
type StructureData struct {
	RawText string
}

// GradeData holds template data for grading prompts.
type GradeData struct {
	QuestionText string
	MarkScheme   string
	Answer       string
	MaxMarks     int
}

// Set is a parsed collection of prompt templates. It is safe for concurrent use.
type Set struct {
	structureSystem string
	structureUser   *template.Template
	gradeSystem     map[PromptVariant]string
	gradeUser       *template.Template
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
	defaultErr  error
)

// Default returns the prompt set built from the embedded templates.
func Default() (*Set, error) {
	defaultOnce.Do(func() {
		defaultSet, defaultErr = Load(Templates)
	})
	return defaultSet, defaultErr
}

// MustDefault is like Default but panics if the embedded templates are broken.
func MustDefault() *Set {
	s, err := Default()
	if err != nil {
		panic(err)
	}
	return s
}

// Load parses prompt templates from fsys, which must contain a templates/ directory.
func Load(fsys fs.FS) (*Set, error) {
	read := func(name string) (string, error) {
		b, err := fs.ReadFile(fsys, "templates/"+name)
		if err != nil {
			return "", fmt.Errorf("read prompt file %s: %w", name, err)
		}
		return string(b), nil
	}
	parse := func(name string) (*template.Template, error) {
		content, err := read(name)
		if err != nil {
			return nil, err
		}
		t, err := template.New(name).Option("missingkey=error").Parse(content)
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
		}
		return t, nil
	}

	s := &Set{gradeSystem: make(map[PromptVariant]string)}
	var err error
	if s.structureSystem, err = read("structure_system.txt"); err != nil {
		return nil, err
	}
	if s.structureUser, err = parse("structure_user.txt"); err != nil {
		return nil, err
	}
	if s.gradeUser, err = parse("grade_user.txt"); err != nil {
		return nil, err
	}
	for _, v := range variants {
		content, err := read("grade_" + string(v) + ".txt")
		if err != nil {
			return nil, err
		}
		s.gradeSystem[v] = content
	}
	return s, nil
}

// BuildStructurePrompt builds the prompt that turns raw exam text into JSON.
func (s *Set) BuildStructurePrompt(rawText string) (Prompt, error) {
	data := StructureData{RawText: sanitizeExamText(rawText)}
	var buf bytes.Buffer
	if err := s.structureUser.Execute(&buf, data); err != nil {
		return Prompt{}, err
	}
	return Prompt{System: s.structureSystem, User: buf.String()}, nil
}

// BuildGradePrompt builds a grading prompt using the specified variant.
func (s *Set) BuildGradePrompt(variant PromptVariant, questionText, markScheme, answer string, maxMarks int) (Prompt, error) {
	system, ok := s.gradeSystem[variant]
	if !ok {
		return Prompt{}, errors.New("invalid prompt variant: " + string(variant))
	}
	if strings.TrimSpace(markScheme) == "" {
		markScheme = DefaultMarkScheme
	}
	data := GradeData{
		QuestionText: questionText,
		MarkScheme:   markScheme,
		Answer:       sanitizeAnswer(answer),
		MaxMarks:     maxMarks,
	}
	var buf bytes.Buffer
	if err := s.gradeUser.Execute(&buf, data); err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: buf.String()}, nil
}

// TruncateRunes returns the first n runes of s.
func TruncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func sanitizeExamText(text string) string {
	text = examTextRegex.ReplaceAllString(text, "")
	text = systemInstructionsRegex.ReplaceAllString(text, "")
	return TruncateRunes(strings.TrimSpace(text), MaxExamTextRunes)
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > MaxAnswerRunes {
		answer = TruncateRunes(answer, MaxAnswerRunes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
