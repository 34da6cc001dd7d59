package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/exampaper/internal/model"
)

// CreateExam stores an exam and its questions in one transaction. Question
// positions follow slice order. Either everything is written or nothing is.
func (s *Store) CreateExam(ctx context.Context, exam model.Exam, questions []model.Question) (model.ExamView, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ExamView{}, err
	}
	defer tx.Rollback()

	exam.CreatedAt = time.Now().UTC()
	exam.ID, err = s.insertID(ctx, tx,
		`INSERT INTO exams (title, subject, owner_id, file_key, created_at) VALUES (?, ?, ?, ?, ?)`,
		exam.Title, exam.Subject, exam.OwnerID, exam.FileKey, exam.CreatedAt,
	)
	if err != nil {
		return model.ExamView{}, fmt.Errorf("insert exam: %w", err)
	}

	saved := make([]model.Question, 0, len(questions))
	for i, q := range questions {
		q.ExamID = exam.ID
		q.Position = i
		if q.Type == "" {
			q.Type = model.QuestionShortAnswer
		}
		q.ID, err = s.insertID(ctx, tx,
			`INSERT INTO questions (exam_id, position, question_number, text, marks, question_type, mark_scheme)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			q.ExamID, q.Position, q.QuestionNumber, q.Text, q.Marks, q.Type, q.MarkScheme,
		)
		if err != nil {
			return model.ExamView{}, fmt.Errorf("insert question %q: %w", q.QuestionNumber, err)
		}
		saved = append(saved, q)
	}

	if err := tx.Commit(); err != nil {
		return model.ExamView{}, err
	}
	return model.ExamView{Exam: exam, Questions: saved}, nil
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(ctx context.Context, id int64) (model.Exam, error) {
	var e model.Exam
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, title, subject, owner_id, file_key, created_at FROM exams WHERE id = ?`), id,
	).Scan(&e.ID, &e.Title, &e.Subject, &e.OwnerID, &e.FileKey, &e.CreatedAt)
	if err != nil {
		return e, notFound(err, "exam", id)
	}
	return e, nil
}

// ListQuestions returns an exam's questions in position order.
func (s *Store) ListQuestions(ctx context.Context, examID int64) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, exam_id, position, question_number, text, marks, question_type, mark_scheme
		 FROM questions WHERE exam_id = ? ORDER BY position`), examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Position, &q.QuestionNumber, &q.Text, &q.Marks, &q.Type, &q.MarkScheme); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetExamView returns an exam with its ordered questions.
func (s *Store) GetExamView(ctx context.Context, id int64) (model.ExamView, error) {
	exam, err := s.GetExam(ctx, id)
	if err != nil {
		return model.ExamView{}, err
	}
	questions, err := s.ListQuestions(ctx, id)
	if err != nil {
		return model.ExamView{}, err
	}
	return model.ExamView{Exam: exam, Questions: questions}, nil
}

// ListExamsByOwner returns the exams a user uploaded, newest first.
func (s *Store) ListExamsByOwner(ctx context.Context, ownerID int64) ([]model.Exam, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, title, subject, owner_id, file_key, created_at
		 FROM exams WHERE owner_id = ? ORDER BY id DESC`), ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Subject, &e.OwnerID, &e.FileKey, &e.CreatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ExamCount returns the total number of exams.
func (s *Store) ExamCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exams`).Scan(&count)
	return count, err
}
