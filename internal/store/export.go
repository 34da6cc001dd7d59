package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/pavelanni/exampaper/internal/model"
)

// ExportExam builds export-ready results for every attempt on an exam,
// oldest attempt first.
func (s *Store) ExportExam(ctx context.Context, examID int64) (model.ExamExport, error) {
	exam, err := s.GetExamView(ctx, examID)
	if err != nil {
		return model.ExamExport{}, err
	}
	attempts, err := s.ListAttemptsByExam(ctx, examID)
	if err != nil {
		return model.ExamExport{}, fmt.Errorf("list attempts: %w", err)
	}
	slices.Reverse(attempts)

	export := model.ExamExport{
		ExamID:       exam.Exam.ID,
		Title:        exam.Exam.Title,
		Subject:      exam.Exam.Subject,
		NumQuestions: len(exam.Questions),
		TotalMarks:   exam.TotalMarks(),
		Results:      []model.StudentResult{},
	}

	// Track attempt count per student for attempt_number.
	attemptCount := make(map[int64]int)
	users := make(map[int64]*model.User)

	for _, a := range attempts {
		attemptCount[a.UserID]++

		user, ok := users[a.UserID]
		if !ok {
			user, err = s.GetUserByID(ctx, a.UserID)
			if err != nil {
				return model.ExamExport{}, fmt.Errorf("get user %d: %w", a.UserID, err)
			}
			users[a.UserID] = user
		}
		var email, displayName string
		if user != nil {
			email = user.Email
			displayName = user.DisplayName
		}

		answers, err := s.ListAnswers(ctx, a.ID)
		if err != nil {
			return model.ExamExport{}, fmt.Errorf("list answers for attempt %d: %w", a.ID, err)
		}
		byQuestion := make(map[int64]model.UserAnswer, len(answers))
		for _, ans := range answers {
			byQuestion[ans.QuestionID] = ans
		}

		questions := make([]model.QuestionResult, 0, len(exam.Questions))
		for _, q := range exam.Questions {
			qr := model.QuestionResult{
				QuestionNumber: q.QuestionNumber,
				Text:           q.Text,
				Type:           q.Type,
				Marks:          q.Marks,
			}
			if ans, ok := byQuestion[q.ID]; ok {
				qr.Response = ans.UserResponse
				qr.AIScore = ans.AIScore
				qr.AIFeedback = ans.AIFeedback
				qr.ImprovementTip = ans.ImprovementTip
			} else {
				qr.Skipped = true
			}
			questions = append(questions, qr)
		}

		export.Results = append(export.Results, model.StudentResult{
			Email:         email,
			DisplayName:   displayName,
			AttemptNumber: attemptCount[a.UserID],
			StartedAt:     a.StartedAt,
			CompletedAt:   a.CompletedAt,
			TotalScore:    a.TotalScore,
			ScoreOutOf:    a.ScoreOutOf,
			Questions:     questions,
		})
	}

	return export, nil
}
