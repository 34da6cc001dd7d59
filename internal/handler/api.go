package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/pavelanni/exampaper/internal/model"
	"github.com/pavelanni/exampaper/internal/store"
)

// defaultAllowedOrigins is used when no origins are configured.
var defaultAllowedOrigins = []string{"http://localhost:3000"}

func (h *Handler) apiRoutes(r chi.Router) {
	origins := h.config.AllowedOrigins
	if len(origins) == 0 {
		origins = defaultAllowedOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(h.requireAPIAuth)
	r.Get("/exams/{examID}", h.apiGetExam)
	r.Get("/attempts/{attemptID}", h.apiGetAttempt)
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func (h *Handler) requireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := h.authenticate(r)
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, apiError{"unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithUser(r.Context(), user)))
	})
}

func (h *Handler) apiGetExam(w http.ResponseWriter, r *http.Request) {
	examID, ok := idParam(r, "examID")
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{"not found"})
		return
	}
	view, err := h.store.GetExamView(r.Context(), examID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, apiError{"not found"})
		return
	}
	if err != nil {
		slog.Error("failed to load exam", "exam_id", examID, "error", err)
		writeJSON(w, http.StatusInternalServerError, apiError{"internal error"})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		model.ExamView
		TotalMarks int `json:"total_marks"`
	}{view, view.TotalMarks()})
}

func (h *Handler) apiGetAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := idParam(r, "attemptID")
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{"not found"})
		return
	}
	view, err := h.loadAttemptFor(r, model.UserFromContext(r.Context()), attemptID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, apiError{"not found"})
		return
	}
	if err != nil {
		slog.Error("failed to load attempt", "attempt_id", attemptID, "error", err)
		writeJSON(w, http.StatusInternalServerError, apiError{"internal error"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}
