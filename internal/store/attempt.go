package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/exampaper/internal/model"
)

// ErrAlreadyCompleted is returned when completing an attempt twice.
var ErrAlreadyCompleted = errors.New("attempt already completed")

const attemptColumns = `id, user_id, exam_id, score_out_of, total_score, started_at, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (model.ExamAttempt, error) {
	var a model.ExamAttempt
	err := row.Scan(&a.ID, &a.UserID, &a.ExamID, &a.ScoreOutOf, &a.TotalScore, &a.StartedAt, &a.CompletedAt)
	return a, err
}

// CreateAttempt records an in-progress attempt with zero scores.
func (s *Store) CreateAttempt(ctx context.Context, userID, examID int64) (model.ExamAttempt, error) {
	a := model.ExamAttempt{
		UserID:    userID,
		ExamID:    examID,
		StartedAt: time.Now().UTC(),
	}
	var err error
	a.ID, err = s.insertID(ctx, s.db,
		`INSERT INTO exam_attempts (user_id, exam_id, score_out_of, total_score, started_at) VALUES (?, ?, 0, 0, ?)`,
		a.UserID, a.ExamID, a.StartedAt,
	)
	if err != nil {
		return model.ExamAttempt{}, err
	}
	return a, nil
}

// GetAttempt returns an attempt by ID.
func (s *Store) GetAttempt(ctx context.Context, id int64) (model.ExamAttempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = ?`), id))
	if err != nil {
		return a, notFound(err, "attempt", id)
	}
	return a, nil
}

// CompleteAttempt sets the final scores and completion time in a single
// update. It fails with ErrAlreadyCompleted if the attempt was already finished.
func (s *Store) CompleteAttempt(ctx context.Context, attemptID int64, totalScore, scoreOutOf int) (model.ExamAttempt, error) {
	if totalScore < 0 || totalScore > scoreOutOf {
		return model.ExamAttempt{}, fmt.Errorf("invalid totals %d/%d for attempt %d", totalScore, scoreOutOf, attemptID)
	}
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE exam_attempts SET total_score = ?, score_out_of = ?, completed_at = ?
		 WHERE id = ? AND completed_at IS NULL`),
		totalScore, scoreOutOf, time.Now().UTC(), attemptID,
	)
	if err != nil {
		return model.ExamAttempt{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.ExamAttempt{}, err
	}
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return model.ExamAttempt{}, err
	}
	if n == 0 {
		return a, fmt.Errorf("attempt %d: %w", attemptID, ErrAlreadyCompleted)
	}
	return a, nil
}

// CreateAnswer stores one graded answer.
func (s *Store) CreateAnswer(ctx context.Context, a model.UserAnswer) (int64, error) {
	var score sql.NullInt64
	if a.AIScore != nil {
		score = sql.NullInt64{Int64: int64(*a.AIScore), Valid: true}
	}
	return s.insertID(ctx, s.db,
		`INSERT INTO user_answers (attempt_id, question_id, user_response, ai_score, ai_feedback, improvement_tip)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.AttemptID, a.QuestionID, a.UserResponse, score, a.AIFeedback, a.ImprovementTip,
	)
}

// ListAnswers returns an attempt's answers in question order.
func (s *Store) ListAnswers(ctx context.Context, attemptID int64) ([]model.UserAnswer, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT a.id, a.attempt_id, a.question_id, a.user_response, a.ai_score, a.ai_feedback, a.improvement_tip
		 FROM user_answers a JOIN questions q ON q.id = a.question_id
		 WHERE a.attempt_id = ? ORDER BY q.position`), attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.UserAnswer
	for rows.Next() {
		var a model.UserAnswer
		var score sql.NullInt64
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.UserResponse, &score, &a.AIFeedback, &a.ImprovementTip); err != nil {
			return nil, err
		}
		if score.Valid {
			v := int(score.Int64)
			a.AIScore = &v
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// GetAttemptView builds the results view: every question of the exam, paired
// with the answer when one exists.
func (s *Store) GetAttemptView(ctx context.Context, attemptID int64) (model.AttemptView, error) {
	attempt, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return model.AttemptView{}, err
	}
	exam, err := s.GetExamView(ctx, attempt.ExamID)
	if err != nil {
		return model.AttemptView{}, err
	}
	answers, err := s.ListAnswers(ctx, attemptID)
	if err != nil {
		return model.AttemptView{}, err
	}
	byQuestion := make(map[int64]*model.UserAnswer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	view := model.AttemptView{Attempt: attempt, Exam: exam.Exam}
	for _, q := range exam.Questions {
		view.Answers = append(view.Answers, model.AnswerView{Question: q, Answer: byQuestion[q.ID]})
	}
	return view, nil
}

func (s *Store) listAttempts(ctx context.Context, where string, args ...any) ([]model.ExamAttempt, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE `+where+` ORDER BY id DESC`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.ExamAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListAttemptsByUser returns a user's attempts, newest first.
func (s *Store) ListAttemptsByUser(ctx context.Context, userID int64) ([]model.ExamAttempt, error) {
	return s.listAttempts(ctx, `user_id = ?`, userID)
}

// ListAttemptsByExam returns all attempts on an exam, newest first.
func (s *Store) ListAttemptsByExam(ctx context.Context, examID int64) ([]model.ExamAttempt, error) {
	return s.listAttempts(ctx, `exam_id = ?`, examID)
}

// ListIncompleteAttempts returns attempts whose grading never finished.
func (s *Store) ListIncompleteAttempts(ctx context.Context) ([]model.ExamAttempt, error) {
	return s.listAttempts(ctx, `completed_at IS NULL`)
}
