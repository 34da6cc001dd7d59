// Package views renders the HTML pages as templ components.
package views

import (
	"context"
	"embed"
	"html/template"
	"io"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/exampaper/internal/i18n"
	"github.com/pavelanni/exampaper/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages holds the parsed templates. The request-bound functions declared here
// are placeholders replaced per render in bind.
var pages = template.Must(template.New("").Funcs(bind(context.Background())).ParseFS(templateFS, "templates/*.html"))

func bind(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"t":    func(id string) string { return appI18n.T(ctx, id) },
		"tp":   func(id string, n int) string { return appI18n.Tp(ctx, id, n) },
		"td":   func(id string, kv ...any) string { return appI18n.Td(ctx, id, pairs(kv)) },
		"lang": func() string { return appI18n.Lang(ctx) },
		"path": func(p string) string { return model.BasePathFromContext(ctx) + p },
		"csrf": func() string { return model.CSRFTokenFromContext(ctx) },
		"user": func() *model.User { return model.UserFromContext(ctx) },
		"date": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
		"typeLabel": func(qt model.QuestionType) string {
			switch qt {
			case model.QuestionLongAnswer:
				return appI18n.T(ctx, "TypeLongAnswer")
			case model.QuestionMultipleChoice:
				return appI18n.T(ctx, "TypeMultipleChoice")
			default:
				return appI18n.T(ctx, "TypeShortAnswer")
			}
		},
		"roleLabel": func(r model.UserRole) string {
			switch r {
			case model.UserRoleAdmin:
				return appI18n.T(ctx, "RoleAdmin")
			case model.UserRoleTeacher:
				return appI18n.T(ctx, "RoleTeacher")
			default:
				return appI18n.T(ctx, "RoleStudent")
			}
		},
		"rows": func(qt model.QuestionType) int {
			if qt == model.QuestionLongAnswer {
				return 10
			}
			return 3
		},
	}
}

func pairs(kv []any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			m[k] = kv[i+1]
		}
	}
	return m
}

func render(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t, err := pages.Clone()
		if err != nil {
			return err
		}
		return t.Funcs(bind(ctx)).ExecuteTemplate(w, name, data)
	})
}

type formData struct {
	Error       string
	Email       string
	DisplayName string
}

// LoginPage renders the login form with an optional error message.
func LoginPage(errMsg string) templ.Component {
	return render("login", formData{Error: errMsg})
}

// SignupPage renders the signup form, keeping the entered email and name.
func SignupPage(errMsg, email, displayName string) templ.Component {
	return render("signup", formData{Error: errMsg, Email: email, DisplayName: displayName})
}

// AttemptRow is one line of the dashboard's attempt list.
type AttemptRow struct {
	Attempt   model.ExamAttempt
	ExamTitle string
}

// DashboardData is what the dashboard shows.
type DashboardData struct {
	Exams    []model.Exam
	Attempts []AttemptRow
	Error    string
}

func DashboardPage(d DashboardData) templ.Component {
	return render("dashboard", d)
}

// ExamPage renders the answer form for an exam.
func ExamPage(v model.ExamView) templ.Component {
	return render("exam", v)
}

// ResultsPage renders a graded attempt.
func ResultsPage(v model.AttemptView) templ.Component {
	return render("results", v)
}

type adminUsersData struct {
	Users   []model.User
	Message string
	Roles   []model.UserRole
}

func AdminUsersPage(users []model.User, msg string) templ.Component {
	return render("admin_users", adminUsersData{
		Users:   users,
		Message: msg,
		Roles:   []model.UserRole{model.UserRoleStudent, model.UserRoleTeacher, model.UserRoleAdmin},
	})
}
