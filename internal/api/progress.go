package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yogguru/trainer/internal/identity"
	"github.com/yogguru/trainer/internal/progress"
)

const (
	// progressWindow bounds the history loaded for the dashboard.
	progressWindow = 365 * 24 * time.Hour

	defaultSessionDays = 30
	maxSessionDays     = 365
)

// ProgressHandler serves practice history and dashboard stats.
type ProgressHandler struct {
	*Handler
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(base *Handler) *ProgressHandler {
	return &ProgressHandler{Handler: base}
}

// RegisterRoutes registers progress routes.
func (h *ProgressHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/progress", h.GetProgress)
	r.Get("/api/sessions", h.ListSessions)
}

// GetProgress returns streak, calories, flexibility, accuracy history and mastery.
func (h *ProgressHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	now := h.now()
	since := now.Add(-progressWindow)

	sessions, err := h.repo.ListPracticeSessions(r.Context(), userID, since)
	if err != nil {
		slog.Error("Failed to list practice sessions", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	verdicts, err := h.repo.ListVerdicts(r.Context(), userID, since)
	if err != nil {
		slog.Error("Failed to list verdicts", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load progress")
		return
	}

	JSON(w, http.StatusOK, progress.Compute(now, sessions, verdicts))
}

// ListSessions returns the user's practice sessions for the last days (default 30).
func (h *ProgressHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	days := defaultSessionDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxSessionDays {
			Error(w, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}

	since := h.now().AddDate(0, 0, -days)
	sessions, err := h.repo.ListPracticeSessions(r.Context(), userID, since)
	if err != nil {
		slog.Error("Failed to list practice sessions", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load sessions")
		return
	}

	JSON(w, http.StatusOK, sessions)
}
