package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		lang, id, want string
	}{
		{"en", "AppTitle", "Exam Paper Grader"},
		{"en", "StartExam", "Start exam"},
		{"ru", "StartExam", "Начать экзамен"},
		{"ru", "Skipped", "Пропущено"},
	}
	for _, tt := range tests {
		ctx := initLang(t, tt.lang)
		if got := T(ctx, tt.id); got != tt.want {
			t.Errorf("[%s] T(%s) = %q, want %q", tt.lang, tt.id, got, tt.want)
		}
	}
}

func TestPluralTranslation(t *testing.T) {
	tests := []struct {
		lang  string
		count int
		want  string
	}{
		{"en", 1, "1 mark"},
		{"en", 5, "5 marks"},
		{"ru", 1, "1 балл"},
		{"ru", 3, "3 балла"},
		{"ru", 5, "5 баллов"},
		{"ru", 21, "21 балл"},
	}
	for _, tt := range tests {
		ctx := initLang(t, tt.lang)
		if got := Tp(ctx, "Marks", tt.count); got != tt.want {
			t.Errorf("[%s] Tp(Marks, %d) = %q, want %q", tt.lang, tt.count, got, tt.want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")
	got := Td(ctx, "ScoreSummary", map[string]any{"Score": 5, "OutOf": 10})
	if got != "You scored 5 out of 10." {
		t.Errorf("Td(ScoreSummary) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")
	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want the key itself", got)
	}
}

func TestLocalesCoverSameKeys(t *testing.T) {
	initLang(t, "en")
	if !slices.Contains(Supported(), "en") || !slices.Contains(Supported(), "ru") {
		t.Fatalf("Supported() = %v", Supported())
	}
	en := WithLocalizer(context.Background(), NewLocalizer("en"))
	ru := WithLocalizer(context.Background(), NewLocalizer("ru"))
	for _, id := range []string{"Login", "UploadExam", "ProcessingFailed", "Feedback", "ImprovementTip", "GradingIncomplete"} {
		if T(en, id) == T(ru, id) {
			t.Errorf("%s is not translated for ru", id)
		}
	}
}

func TestMiddleware(t *testing.T) {
	initLang(t, "en")
	var got, lang string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "Logout")
		lang = Lang(r.Context())
	}))

	tests := []struct {
		name, target, accept, want, wantLang string
	}{
		{"default", "/", "", "Log out", "en"},
		{"accept-language", "/", "ru-RU,ru;q=0.9", "Выйти", "ru"},
		{"query wins", "/?lang=en", "ru", "Log out", "en"},
		{"unknown query ignored", "/?lang=xx", "ru", "Выйти", "ru"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want || lang != tt.wantLang {
				t.Errorf("got %q (%s), want %q (%s)", got, lang, tt.want, tt.wantLang)
			}
		})
	}
}
