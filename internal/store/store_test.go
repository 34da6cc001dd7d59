package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pavelanni/exampaper/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestUser(t *testing.T, s *Store, email string) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), model.User{
		Email:        email,
		DisplayName:  email,
		PasswordHash: "hash",
		Role:         model.UserRoleStudent,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("insertTestUser: %v", err)
	}
	return id
}

func insertTestExam(t *testing.T, s *Store, ownerID int64, marks ...int) model.ExamView {
	t.Helper()
	var qs []model.Question
	for i, m := range marks {
		qs = append(qs, model.Question{
			QuestionNumber: string(rune('1' + i)),
			Text:           "question",
			Marks:          m,
			Type:           model.QuestionShortAnswer,
		})
	}
	view, err := s.CreateExam(context.Background(), model.Exam{Title: "Paper", Subject: "Physics", OwnerID: ownerID}, qs)
	if err != nil {
		t.Fatalf("insertTestExam: %v", err)
	}
	return view
}

func TestExamCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := insertTestUser(t, s, "teacher@example.com")

	created, err := s.CreateExam(ctx, model.Exam{Title: "Chemistry P1", Subject: "Chemistry", OwnerID: owner, FileKey: "uploads/a.pdf"},
		[]model.Question{
			{QuestionNumber: "1a", Text: "Define an isotope.", Marks: 2, Type: model.QuestionShortAnswer, MarkScheme: "same protons"},
			{QuestionNumber: "1b", Text: "Describe electrolysis.", Marks: 6, Type: model.QuestionLongAnswer},
			{QuestionNumber: "2", Text: "Pick one.", Marks: 1},
		})
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if created.Exam.ID == 0 {
		t.Fatal("expected exam ID to be set")
	}

	view, err := s.GetExamView(ctx, created.Exam.ID)
	if err != nil {
		t.Fatalf("GetExamView: %v", err)
	}
	if view.Exam.Title != "Chemistry P1" || view.Exam.FileKey != "uploads/a.pdf" {
		t.Errorf("unexpected exam: %+v", view.Exam)
	}
	if len(view.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(view.Questions))
	}
	for i, q := range view.Questions {
		if q.Position != i {
			t.Errorf("question %d has position %d", i, q.Position)
		}
		if q.ID != created.Questions[i].ID {
			t.Errorf("question %d ID = %d, want %d", i, q.ID, created.Questions[i].ID)
		}
	}
	if view.Questions[0].MarkScheme != "same protons" {
		t.Errorf("mark scheme not stored: %q", view.Questions[0].MarkScheme)
	}
	if view.Questions[2].Type != model.QuestionShortAnswer {
		t.Errorf("empty type should default to short_answer, got %q", view.Questions[2].Type)
	}
	if view.TotalMarks() != 9 {
		t.Errorf("TotalMarks = %d, want 9", view.TotalMarks())
	}

	exams, err := s.ListExamsByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("ListExamsByOwner: %v", err)
	}
	if len(exams) != 1 {
		t.Errorf("expected 1 exam, got %d", len(exams))
	}

	_, err = s.GetExamView(ctx, 9999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateExamIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := insertTestUser(t, s, "t@example.com")

	_, err := s.CreateExam(ctx, model.Exam{Title: "Bad", Subject: "S", OwnerID: owner}, []model.Question{
		{QuestionNumber: "1", Text: "ok", Marks: 2},
		{QuestionNumber: "2", Text: "negative", Marks: -1},
	})
	if err == nil {
		t.Fatal("expected error for negative marks")
	}

	count, err := s.ExamCount(ctx)
	if err != nil {
		t.Fatalf("ExamCount: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no exam after failed insert, got %d", count)
	}
}

func TestAttemptLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := insertTestUser(t, s, "student@example.com")
	exam := insertTestExam(t, s, user, 5, 3, 2)

	a, err := s.CreateAttempt(ctx, user, exam.Exam.ID)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	got, err := s.GetAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got.Completed() || got.TotalScore != 0 || got.ScoreOutOf != 0 {
		t.Errorf("new attempt should be in progress with zero scores: %+v", got)
	}

	incomplete, err := s.ListIncompleteAttempts(ctx)
	if err != nil {
		t.Fatalf("ListIncompleteAttempts: %v", err)
	}
	if len(incomplete) != 1 {
		t.Errorf("expected 1 incomplete attempt, got %d", len(incomplete))
	}

	score := 4
	if _, err := s.CreateAnswer(ctx, model.UserAnswer{
		AttemptID: a.ID, QuestionID: exam.Questions[0].ID, UserResponse: "answer", AIScore: &score, AIFeedback: "good", ImprovementTip: "more detail",
	}); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if _, err := s.CreateAnswer(ctx, model.UserAnswer{
		AttemptID: a.ID, QuestionID: exam.Questions[0].ID, UserResponse: "again", AIScore: &score,
	}); err == nil {
		t.Error("expected error for a second answer to the same question")
	}

	if _, err := s.CompleteAttempt(ctx, a.ID, 11, 10); err == nil {
		t.Error("expected error when total exceeds maximum")
	}

	done, err := s.CompleteAttempt(ctx, a.ID, 4, 10)
	if err != nil {
		t.Fatalf("CompleteAttempt: %v", err)
	}
	if !done.Completed() || done.TotalScore != 4 || done.ScoreOutOf != 10 {
		t.Errorf("unexpected completed attempt: %+v", done)
	}

	_, err = s.CompleteAttempt(ctx, a.ID, 5, 10)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("expected ErrAlreadyCompleted, got %v", err)
	}
	_, err = s.CompleteAttempt(ctx, 9999, 0, 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	view, err := s.GetAttemptView(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAttemptView: %v", err)
	}
	if len(view.Answers) != 3 {
		t.Fatalf("expected 3 question rows, got %d", len(view.Answers))
	}
	first := view.Answers[0].Answer
	if first == nil || first.AIScore == nil || *first.AIScore != 4 || first.ImprovementTip != "more detail" {
		t.Errorf("unexpected first answer: %+v", first)
	}
	if view.Answers[1].Answer != nil || view.Answers[2].Answer != nil {
		t.Error("skipped questions should have no answer")
	}

	incomplete, _ = s.ListIncompleteAttempts(ctx)
	if len(incomplete) != 0 {
		t.Errorf("expected no incomplete attempts, got %d", len(incomplete))
	}
}

func TestAnswerWithoutScore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	user := insertTestUser(t, s, "s@example.com")
	exam := insertTestExam(t, s, user, 1)
	a, _ := s.CreateAttempt(ctx, user, exam.Exam.ID)

	if _, err := s.CreateAnswer(ctx, model.UserAnswer{AttemptID: a.ID, QuestionID: exam.Questions[0].ID}); err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	answers, err := s.ListAnswers(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 1 || answers[0].AIScore != nil {
		t.Errorf("expected one answer with null score, got %+v", answers)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := insertTestUser(t, s, "Ada@Example.com ")
	u, err := s.GetUserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u == nil || u.ID != id {
		t.Fatalf("expected user %d, got %+v", id, u)
	}
	if !u.Active {
		t.Error("expected active user")
	}

	_, err = s.CreateUser(ctx, model.User{Email: "ADA@example.com", PasswordHash: "x", Role: model.UserRoleStudent})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	if err := s.ToggleUserActive(ctx, id); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	u, _ = s.GetUserByID(ctx, id)
	if u.Active {
		t.Error("expected inactive user after toggle")
	}

	missing, err := s.GetUserByID(ctx, 9999)
	if err != nil || missing != nil {
		t.Errorf("expected nil user, got %+v, %v", missing, err)
	}

	count, _ := s.UserCount(ctx)
	if count != 1 {
		t.Errorf("UserCount = %d, want 1", count)
	}
}

func TestAuthSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid := insertTestUser(t, s, "a@example.com")

	token, err := s.CreateAuthSession(ctx, uid)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char token, got %d", len(token))
	}

	sess, err := s.GetAuthSession(ctx, token)
	if err != nil || sess == nil {
		t.Fatalf("GetAuthSession: %+v, %v", sess, err)
	}
	if sess.UserID != uid {
		t.Errorf("session user = %d, want %d", sess.UserID, uid)
	}

	if err := s.DeleteAuthSession(ctx, token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, err = s.GetAuthSession(ctx, token)
	if err != nil || sess != nil {
		t.Errorf("expected deleted session, got %+v, %v", sess, err)
	}
}

func TestExportExam(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	uid := insertTestUser(t, s, "x@example.com")
	exam := insertTestExam(t, s, uid, 5, 3)

	for i := 0; i < 2; i++ {
		a, err := s.CreateAttempt(ctx, uid, exam.Exam.ID)
		if err != nil {
			t.Fatalf("CreateAttempt: %v", err)
		}
		score := 2
		if _, err := s.CreateAnswer(ctx, model.UserAnswer{AttemptID: a.ID, QuestionID: exam.Questions[0].ID, UserResponse: "r", AIScore: &score}); err != nil {
			t.Fatalf("CreateAnswer: %v", err)
		}
		if _, err := s.CompleteAttempt(ctx, a.ID, 2, 8); err != nil {
			t.Fatalf("CompleteAttempt: %v", err)
		}
	}

	export, err := s.ExportExam(ctx, exam.Exam.ID)
	if err != nil {
		t.Fatalf("ExportExam: %v", err)
	}
	if export.NumQuestions != 2 || export.TotalMarks != 8 {
		t.Errorf("unexpected header: %+v", export)
	}
	if len(export.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(export.Results))
	}
	if export.Results[0].AttemptNumber != 1 || export.Results[1].AttemptNumber != 2 {
		t.Errorf("attempt numbers = %d, %d", export.Results[0].AttemptNumber, export.Results[1].AttemptNumber)
	}
	qs := export.Results[0].Questions
	if qs[0].Skipped || !qs[1].Skipped {
		t.Errorf("unexpected skipped flags: %+v", qs)
	}
	if export.Results[0].Email != "x@example.com" {
		t.Errorf("email = %q", export.Results[0].Email)
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	got := pg.rebind(`UPDATE t SET a = ?, b = ? WHERE id = ?`)
	if got != `UPDATE t SET a = $1, b = $2 WHERE id = $3` {
		t.Errorf("rebind = %q", got)
	}
	lite := &Store{driver: DriverSQLite}
	if q := `SELECT ?`; lite.rebind(q) != q {
		t.Error("sqlite queries should be unchanged")
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", ""); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
