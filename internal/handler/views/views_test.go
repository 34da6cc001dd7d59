package views

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/exampaper/internal/i18n"
	"github.com/pavelanni/exampaper/internal/model"
)

func renderString(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func testContext(t *testing.T, user *model.User) context.Context {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer("en"))
	ctx = model.ContextWithBasePath(ctx, "/base")
	ctx = model.ContextWithCSRFToken(ctx, "tok123")
	if user != nil {
		ctx = model.ContextWithUser(ctx, user)
	}
	return ctx
}

func assertContains(t *testing.T, html string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(html, w) {
			t.Errorf("output missing %q", w)
		}
	}
}

func TestLoginPage(t *testing.T) {
	html := renderString(t, testContext(t, nil), LoginPage("Invalid email or password."))
	assertContains(t, html,
		`action="/base/login"`,
		`value="tok123"`,
		"Invalid email or password.",
		`href="/base/signup"`,
	)
	if strings.Contains(html, "/base/logout") {
		t.Error("anonymous page shows logout")
	}
}

func TestSignupPageEscapes(t *testing.T) {
	html := renderString(t, testContext(t, nil), SignupPage("", "a@example.com", `<script>x</script>`))
	assertContains(t, html, `value="a@example.com"`, "&lt;script&gt;")
}

func TestDashboardPage(t *testing.T) {
	user := &model.User{ID: 1, Email: "s@example.com", Role: model.UserRoleStudent}
	done := time.Now()
	html := renderString(t, testContext(t, user), DashboardPage(DashboardData{
		Exams: []model.Exam{{ID: 4, Title: "Biology P2", Subject: "Biology"}},
		Attempts: []AttemptRow{
			{Attempt: model.ExamAttempt{ID: 9, ExamID: 4, TotalScore: 5, ScoreOutOf: 10, CompletedAt: &done}, ExamTitle: "Biology P2"},
			{Attempt: model.ExamAttempt{ID: 10, ExamID: 4}, ExamTitle: "Biology P2"},
		},
		Error: "ProcessingFailed",
	}))
	assertContains(t, html,
		"The paper could not be processed.",
		`href="/base/exam/4"`,
		"5 / 10",
		`href="/base/exam/4/results/9"`,
		"Grading of this attempt did not finish.",
		"s@example.com",
	)
	if strings.Contains(html, "/base/admin/users") {
		t.Error("student sees admin link")
	}
}

func TestExamPage(t *testing.T) {
	user := &model.User{ID: 1, Role: model.UserRoleStudent}
	html := renderString(t, testContext(t, user), ExamPage(model.ExamView{
		Exam: model.Exam{ID: 3, Title: "Physics"},
		Questions: []model.Question{
			{ID: 11, QuestionNumber: "1a", Text: "Define work.", Marks: 1, Type: model.QuestionShortAnswer},
			{ID: 12, QuestionNumber: "1b", Text: "Discuss energy.", Marks: 6, Type: model.QuestionLongAnswer},
		},
	}))
	assertContains(t, html,
		`action="/base/exam/3/submit"`,
		`name="answers[11]"`,
		`name="answers[12]" rows="10"`,
		"2 questions",
		"7 marks",
		"1 mark,",
		"Long answer",
	)
}

func TestResultsPage(t *testing.T) {
	score := 3
	done := time.Now()
	user := &model.User{ID: 1, Role: model.UserRoleStudent}
	html := renderString(t, testContext(t, user), ResultsPage(model.AttemptView{
		Attempt: model.ExamAttempt{ID: 2, TotalScore: 3, ScoreOutOf: 8, CompletedAt: &done},
		Exam:    model.Exam{ID: 3, Title: "Physics"},
		Answers: []model.AnswerView{
			{
				Question: model.Question{ID: 11, QuestionNumber: "1", Text: "Define work.", Marks: 5},
				Answer:   &model.UserAnswer{UserResponse: "Force times distance", AIScore: &score, AIFeedback: "Mostly right.", ImprovementTip: "Mention units."},
			},
			{Question: model.Question{ID: 12, QuestionNumber: "2", Text: "Discuss energy.", Marks: 3}},
		},
	}))
	assertContains(t, html,
		"You scored 3 out of 8.",
		"Force times distance",
		"Score: 3 / 5",
		"Mostly right.",
		"Mention units.",
		"Skipped · 0 / 3",
	)
}

func TestAdminUsersPage(t *testing.T) {
	admin := &model.User{ID: 1, Email: "admin@example.com", Role: model.UserRoleAdmin, Active: true}
	html := renderString(t, testContext(t, admin), AdminUsersPage([]model.User{*admin, {ID: 2, Email: "t@example.com", Role: model.UserRoleTeacher}}, ""))
	assertContains(t, html,
		`href="/base/admin/users"`,
		`action="/base/admin/users/2/toggle"`,
		"Teacher",
		"Inactive",
		`<option value="student">`,
	)
}
