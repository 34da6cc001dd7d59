package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/exampaper/internal/grading"
	"github.com/pavelanni/exampaper/internal/handler/views"
	"github.com/pavelanni/exampaper/internal/ingest"
	"github.com/pavelanni/exampaper/internal/model"
	"github.com/pavelanni/exampaper/internal/store"
	"github.com/pavelanni/exampaper/internal/structurer"
)

const defaultMaxUploadMB = 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store        *store.Store
	ingester     *ingest.Ingester
	orchestrator *grading.Orchestrator
	config       model.AppConfig
}

// New creates a new Handler.
func New(s *store.Store, in *ingest.Ingester, o *grading.Orchestrator, cfg model.AppConfig) *Handler {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = defaultMaxUploadMB
	}
	return &Handler{store: s, ingester: in, orchestrator: o, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", h.apiRoutes)

	r.Group(func(r chi.Router) {
		r.Use(h.limitBody)
		r.Use(h.csrfMiddleware)
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Get("/signup", h.handleSignupPage)
		r.Post("/signup", h.handleSignup)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Use(h.limitBody)
		r.Use(h.csrfMiddleware)
		r.Post("/logout", h.handleLogout)
		r.Get("/", h.handleDashboard)
		r.Post("/upload", h.handleUpload)
		r.Get("/exam/{examID}", h.handleExamPage)
		r.Post("/exam/{examID}/submit", h.handleSubmit)
		r.Get("/exam/{examID}/results/{attemptID}", h.handleResults)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/admin/users", h.handleAdminUsersPage)
			r.Post("/admin/users", h.handleCreateUser)
			r.Post("/admin/users/{userID}/toggle", h.handleToggleUserActive)
		})
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) maxUploadBytes() int64 {
	return int64(h.config.MaxUploadMB) << 20
}

// limitBody caps request bodies at the upload limit plus room for form fields.
func (h *Handler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes()+1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := model.UserFromContext(ctx)

	exams, err := h.store.ListExamsByOwner(ctx, user.ID)
	if err != nil {
		slog.Error("failed to list exams", "user_id", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	attempts, err := h.store.ListAttemptsByUser(ctx, user.ID)
	if err != nil {
		slog.Error("failed to list attempts", "user_id", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	titles := make(map[int64]string)
	for _, e := range exams {
		titles[e.ID] = e.Title
	}
	rows := make([]views.AttemptRow, 0, len(attempts))
	for _, a := range attempts {
		title, ok := titles[a.ExamID]
		if !ok {
			if e, err := h.store.GetExam(ctx, a.ExamID); err == nil {
				title = e.Title
			}
			titles[a.ExamID] = title
		}
		rows = append(rows, views.AttemptRow{Attempt: a, ExamTitle: title})
	}

	var errKey string
	switch r.URL.Query().Get("error") {
	case "ProcessingFailed":
		errKey = "ProcessingFailed"
	case "UploadMissing":
		errKey = "UploadMissing"
	}

	render(w, r, http.StatusOK, views.DashboardPage(views.DashboardData{Exams: exams, Attempts: rows, Error: errKey}))
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := model.UserFromContext(ctx)

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Redirect(w, r, h.path("/?error=UploadMissing"), http.StatusSeeOther)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes()+1))
	if err != nil {
		slog.Error("failed to read upload", "error", err)
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > h.maxUploadBytes() {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	view, err := h.ingester.Ingest(ctx, user.ID, header.Filename, data)
	if err != nil {
		if errors.Is(err, structurer.ErrStructuring) {
			slog.Warn("upload could not be structured", "filename", header.Filename, "error", err)
		} else {
			slog.Error("upload failed", "filename", header.Filename, "error", err)
		}
		http.Redirect(w, r, h.path("/?error=ProcessingFailed"), http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, h.path(fmt.Sprintf("/exam/%d", view.Exam.ID)), http.StatusSeeOther)
}

func (h *Handler) handleExamPage(w http.ResponseWriter, r *http.Request) {
	examID, ok := idParam(r, "examID")
	if !ok {
		http.NotFound(w, r)
		return
	}
	view, err := h.store.GetExamView(r.Context(), examID)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("failed to load exam", "exam_id", examID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	render(w, r, http.StatusOK, views.ExamPage(view))
}

// parseAnswers collects form fields named answers[<questionID>].
func parseAnswers(r *http.Request) map[int64]string {
	responses := make(map[int64]string)
	for key, vals := range r.PostForm {
		if !strings.HasPrefix(key, "answers[") || !strings.HasSuffix(key, "]") || len(vals) == 0 {
			continue
		}
		id, err := strconv.ParseInt(key[len("answers["):len(key)-1], 10, 64)
		if err != nil {
			continue
		}
		responses[id] = vals[0]
	}
	return responses
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	examID, ok := idParam(r, "examID")
	if !ok {
		http.NotFound(w, r)
		return
	}
	user := model.UserFromContext(r.Context())

	attempt, err := h.orchestrator.Submit(r.Context(), user.ID, examID, parseAnswers(r))
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, grading.ErrInterrupted):
		slog.Warn("submission abandoned", "attempt_id", attempt.ID, "error", err)
		http.Error(w, "grading interrupted", http.StatusServiceUnavailable)
		return
	case err != nil:
		slog.Error("submission failed", "exam_id", examID, "user_id", user.ID, "error", err)
		http.Error(w, "grading failed", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.path(fmt.Sprintf("/exam/%d/results/%d", examID, attempt.ID)), http.StatusSeeOther)
}

// loadAttemptFor returns the attempt view if user may see it. Attempts of
// other users are reported as not found unless user can review.
func (h *Handler) loadAttemptFor(r *http.Request, user *model.User, attemptID int64) (model.AttemptView, error) {
	view, err := h.store.GetAttemptView(r.Context(), attemptID)
	if err != nil {
		return view, err
	}
	if view.Attempt.UserID != user.ID && !user.CanReview() {
		return model.AttemptView{}, fmt.Errorf("attempt %d: %w", attemptID, store.ErrNotFound)
	}
	return view, nil
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	examID, ok1 := idParam(r, "examID")
	attemptID, ok2 := idParam(r, "attemptID")
	if !ok1 || !ok2 {
		http.NotFound(w, r)
		return
	}
	user := model.UserFromContext(r.Context())

	view, err := h.loadAttemptFor(r, user, attemptID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && view.Attempt.ExamID != examID) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("failed to load attempt", "attempt_id", attemptID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	render(w, r, http.StatusOK, views.ResultsPage(view))
}
