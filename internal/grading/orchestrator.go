package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/exampaper/internal/model"
)

// Defaults for Config fields left at zero.
const (
	DefaultMaxParallel = 4
	DefaultCallTimeout = 60 * time.Second
)

// ErrInterrupted is returned when the caller's context ends before grading
// settles. The attempt is left incomplete.
var ErrInterrupted = errors.New("grading interrupted")

// Store is the persistence the orchestrator needs.
type Store interface {
	GetExamView(ctx context.Context, examID int64) (model.ExamView, error)
	CreateAttempt(ctx context.Context, userID, examID int64) (model.ExamAttempt, error)
	CreateAnswer(ctx context.Context, a model.UserAnswer) (int64, error)
	CompleteAttempt(ctx context.Context, attemptID int64, totalScore, scoreOutOf int) (model.ExamAttempt, error)
}

// AnswerGrader scores one answer and never fails.
type AnswerGrader interface {
	Grade(ctx context.Context, req GradeRequest) model.GradeResult
}

// Config bounds the grading fan-out.
type Config struct {
	MaxParallel int           // concurrent grading calls per attempt
	CallTimeout time.Duration // per grading call
}

// Orchestrator turns a submission into a graded, completed attempt.
type Orchestrator struct {
	store  Store
	grader AnswerGrader
	cfg    Config
}

// NewOrchestrator creates an Orchestrator, filling zero Config fields with defaults.
func NewOrchestrator(s Store, g AnswerGrader, cfg Config) *Orchestrator {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &Orchestrator{store: s, grader: g, cfg: cfg}
}

// Submit records an attempt for examID and grades every answered question.
// responses maps question ID to the submitted text; a missing or blank entry
// means the question was skipped and gets no UserAnswer.
//
// The attempt row is written before any grading call. It is completed with
// one update after every call has settled. If ctx ends first, Submit returns
// ErrInterrupted together with the incomplete attempt.
func (o *Orchestrator) Submit(ctx context.Context, userID, examID int64, responses map[int64]string) (model.ExamAttempt, error) {
	view, err := o.store.GetExamView(ctx, examID)
	if err != nil {
		return model.ExamAttempt{}, fmt.Errorf("load exam %d: %w", examID, err)
	}

	attempt, err := o.store.CreateAttempt(ctx, userID, examID)
	if err != nil {
		return model.ExamAttempt{}, fmt.Errorf("create attempt: %w", err)
	}
	log := slog.With("attempt_id", attempt.ID, "exam_id", examID, "user_id", userID)
	start := time.Now()

	// One slot per question, indexed by position, so the totals do not depend
	// on completion order. A nil slot is a skipped (or unsaved) question.
	results := make([]*model.GradeResult, len(view.Questions))
	saveErrs := make([]error, len(view.Questions))

	var g errgroup.Group
	g.SetLimit(o.cfg.MaxParallel)
	dispatched := 0
	for i, q := range view.Questions {
		i, q := i, q
		response := responses[q.ID]
		if strings.TrimSpace(response) == "" {
			continue
		}
		dispatched++
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res := o.gradeOne(ctx, q, response)
			if ctx.Err() != nil {
				// A cancelled call degrades to zero; do not record it as a verdict.
				return nil
			}
			score := res.ScoreAwarded
			_, err := o.store.CreateAnswer(ctx, model.UserAnswer{
				AttemptID:      attempt.ID,
				QuestionID:     q.ID,
				UserResponse:   response,
				AIScore:        &score,
				AIFeedback:     res.Feedback,
				ImprovementTip: res.ImprovementTip,
			})
			if err != nil {
				log.Error("failed to save answer", "question_id", q.ID, "error", err)
				saveErrs[i] = fmt.Errorf("question %d: %w", q.ID, err)
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		log.Warn("grading interrupted, attempt left incomplete", "error", err)
		return attempt, fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	if err := errors.Join(saveErrs...); err != nil {
		return attempt, fmt.Errorf("save answers for attempt %d: %w", attempt.ID, err)
	}

	total, failed := 0, 0
	for _, r := range results {
		if r == nil {
			continue
		}
		total += r.ScoreAwarded
		if r.Failed {
			failed++
		}
	}
	outOf := view.TotalMarks()

	completed, err := o.store.CompleteAttempt(ctx, attempt.ID, total, outOf)
	if err != nil {
		return attempt, fmt.Errorf("complete attempt %d: %w", attempt.ID, err)
	}

	log.Info("attempt graded",
		"total_score", total,
		"score_out_of", outOf,
		"answered", dispatched,
		"skipped", len(view.Questions)-dispatched,
		"failed_calls", failed,
		"duration", time.Since(start),
	)
	return completed, nil
}

// gradeOne runs one grading call under the per-call timeout and re-clamps the
// score against the question's marks.
func (o *Orchestrator) gradeOne(ctx context.Context, q model.Question, response string) model.GradeResult {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	res := o.grader.Grade(callCtx, GradeRequest{
		QuestionText: q.Text,
		MarkScheme:   q.MarkScheme,
		Answer:       response,
		MaxMarks:     q.Marks,
	})
	res.ScoreAwarded = Clamp(res.ScoreAwarded, q.Marks)
	return res
}
