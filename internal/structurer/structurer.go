// Package structurer turns raw exam-paper text into a validated StructuredExam
// with a single language-model call.
package structurer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/exampaper/internal/llm"
	"github.com/pavelanni/exampaper/internal/llm/prompts"
	"github.com/pavelanni/exampaper/internal/model"
)

// Defaults applied when the model omits or garbles a field.
const (
	DefaultTitle   = "Untitled Exam"
	DefaultSubject = "General"
	DefaultMarks   = 1

	DefaultTimeout = 120 * time.Second
)

// ErrStructuring is wrapped by every error Structure returns.
var ErrStructuring = errors.New("exam structuring failed")

// Structurer converts extracted exam text into questions.
type Structurer struct {
	llm     llm.Completer
	prompts *prompts.Set
	timeout time.Duration
}

// New creates a Structurer. A non-positive timeout means DefaultTimeout.
func New(c llm.Completer, p *prompts.Set, timeout time.Duration) *Structurer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Structurer{llm: c, prompts: p, timeout: timeout}
}

// Structure asks the model for the exam's structure and validates the answer.
// Input beyond prompts.MaxExamTextRunes is dropped before the call.
func (s *Structurer) Structure(ctx context.Context, rawText string) (model.StructuredExam, error) {
	p, err := s.prompts.BuildStructurePrompt(rawText)
	if err != nil {
		return model.StructuredExam{}, fmt.Errorf("%w: build prompt: %v", ErrStructuring, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.llm.Complete(callCtx, p.System, p.User, true)
	if err != nil {
		slog.Error("structuring call failed", "error", err)
		return model.StructuredExam{}, fmt.Errorf("%w: %w", ErrStructuring, err)
	}

	exam, err := Parse(raw)
	if err != nil {
		slog.Error("structuring response rejected", "error", err, "raw", raw)
		return model.StructuredExam{}, err
	}

	slog.Info("exam structured",
		"title", exam.Title,
		"subject", exam.Subject,
		"questions", len(exam.Questions),
		"total_marks", exam.TotalMarks(),
	)
	return exam, nil
}

type rawExam struct {
	Title     json.RawMessage `json:"exam_title"`
	Subject   json.RawMessage `json:"subject"`
	Questions json.RawMessage `json:"questions"`
}

type rawQuestion struct {
	Number json.RawMessage `json:"question_number"`
	Text   json.RawMessage `json:"text"`
	Marks  json.RawMessage `json:"marks"`
	Type   json.RawMessage `json:"type"`
}

// Parse validates a model response against the exam JSON contract.
// Shape violations are errors; missing or mistyped fields take their defaults.
func Parse(raw string) (model.StructuredExam, error) {
	body := []byte(stripCodeFence(raw))

	if !isJSONObject(body) {
		return model.StructuredExam{}, fmt.Errorf("%w: response is not a JSON object", ErrStructuring)
	}
	var re rawExam
	if err := json.Unmarshal(body, &re); err != nil {
		return model.StructuredExam{}, fmt.Errorf("%w: parse response: %v", ErrStructuring, err)
	}

	exam := model.StructuredExam{
		Title:   stringOr(re.Title, DefaultTitle),
		Subject: stringOr(re.Subject, DefaultSubject),
	}

	if isAbsent(re.Questions) {
		return exam, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(re.Questions, &items); err != nil {
		return model.StructuredExam{}, fmt.Errorf("%w: questions is not an array", ErrStructuring)
	}

	exam.Questions = make([]model.StructuredQuestion, 0, len(items))
	for i, item := range items {
		if !isJSONObject(item) {
			return model.StructuredExam{}, fmt.Errorf("%w: question %d is not an object", ErrStructuring, i+1)
		}
		var rq rawQuestion
		if err := json.Unmarshal(item, &rq); err != nil {
			return model.StructuredExam{}, fmt.Errorf("%w: question %d: %v", ErrStructuring, i+1, err)
		}
		exam.Questions = append(exam.Questions, model.StructuredQuestion{
			QuestionNumber: labelOr(rq.Number, strconv.Itoa(i+1)),
			Text:           stringOr(rq.Text, ""),
			Marks:          marksOf(rq.Marks),
			Type:           model.ParseQuestionType(strings.ToLower(stringOr(rq.Type, ""))),
		})
	}
	return exam, nil
}

// stripCodeFence removes a surrounding ```json ... ``` block some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isJSONObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}

func isAbsent(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

// stringOr returns the JSON string in v, or def when v is absent, empty or not a string.
func stringOr(v json.RawMessage, def string) string {
	if isAbsent(v) {
		return def
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return def
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

// labelOr accepts a string or a number as a question label.
func labelOr(v json.RawMessage, def string) string {
	if s := stringOr(v, ""); s != "" {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil && n != "" {
		return n.String()
	}
	return def
}

// marksOf reads an integer mark allocation from a JSON number or numeric string.
func marksOf(v json.RawMessage) int {
	if isAbsent(v) {
		return DefaultMarks
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		s := stringOr(v, "")
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return DefaultMarks
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxInt32 {
		return DefaultMarks
	}
	return int(math.Round(f))
}
