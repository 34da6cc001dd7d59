package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/pavelanni/exampaper/internal/llm"
	"github.com/pavelanni/exampaper/internal/llm/prompts"
	"github.com/pavelanni/exampaper/internal/model"
)

// FailureFeedback is the feedback recorded when a grading call does not produce a verdict.
const FailureFeedback = "AI Error during grading"

// GradeRequest is everything the grader needs for one answer.
type GradeRequest struct {
	QuestionText string
	MarkScheme   string
	Answer       string
	MaxMarks     int
}

// Grader scores single answers. It holds no per-call state and is safe for concurrent use.
type Grader struct {
	llm     llm.Completer
	prompts *prompts.Set
	variant prompts.PromptVariant
}

// NewGrader creates a Grader using the given prompt variant.
func NewGrader(c llm.Completer, p *prompts.Set, variant prompts.PromptVariant) *Grader {
	if variant == "" {
		variant = prompts.PromptStandard
	}
	return &Grader{llm: c, prompts: p, variant: variant}
}

// Grade scores one answer. It never fails: any fault yields a zero score with
// FailureFeedback and Failed set. Scores are clamped to [0, MaxMarks].
func (g *Grader) Grade(ctx context.Context, req GradeRequest) model.GradeResult {
	res, err := g.grade(ctx, req)
	if err != nil {
		slog.Warn("grading failed, awarding zero", "error", err)
		return failedResult()
	}
	return res
}

func (g *Grader) grade(ctx context.Context, req GradeRequest) (model.GradeResult, error) {
	p, err := g.prompts.BuildGradePrompt(g.variant, req.QuestionText, req.MarkScheme, req.Answer, req.MaxMarks)
	if err != nil {
		return model.GradeResult{}, fmt.Errorf("build prompt: %w", err)
	}
	raw, err := g.llm.Complete(ctx, p.System, p.User, true)
	if err != nil {
		return model.GradeResult{}, err
	}
	return ParseGrade(raw, req.MaxMarks)
}

func failedResult() model.GradeResult {
	return model.GradeResult{ScoreAwarded: 0, Feedback: FailureFeedback, Failed: true}
}

// errNoScore is returned when the response carries no usable score.
var errNoScore = errors.New("grading response has no score_awarded")

// ParseGrade reads a grading response and clamps the score into [0, maxMarks].
func ParseGrade(raw string, maxMarks int) (model.GradeResult, error) {
	var resp struct {
		Score          json.RawMessage `json:"score_awarded"`
		Feedback       *string         `json:"feedback"`
		ImprovementTip *string         `json:"improvement_tip"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		return model.GradeResult{}, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}

	score, ok := scoreOf(resp.Score)
	if !ok {
		return model.GradeResult{}, fmt.Errorf("%w (raw: %s)", errNoScore, raw)
	}

	res := model.GradeResult{ScoreAwarded: Clamp(score, maxMarks)}
	if resp.Feedback != nil {
		res.Feedback = strings.TrimSpace(*resp.Feedback)
	}
	if resp.ImprovementTip != nil {
		res.ImprovementTip = strings.TrimSpace(*resp.ImprovementTip)
	}
	return res, nil
}

// Clamp forces score into [0, maxMarks]. A negative maxMarks clamps to 0.
func Clamp(score, maxMarks int) int {
	if maxMarks < 0 {
		maxMarks = 0
	}
	return max(0, min(score, maxMarks))
}

func scoreOf(v json.RawMessage) (int, bool) {
	if len(v) == 0 || string(v) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, false
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) {
		return 0, false
	}
	// Saturate before converting so huge values clamp instead of overflowing.
	f = math.Max(math.Min(math.Round(f), math.MaxInt32), math.MinInt32)
	return int(f), true
}
