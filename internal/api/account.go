package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yogguru/trainer/internal/catalog"
	"github.com/yogguru/trainer/internal/domain"
	"github.com/yogguru/trainer/internal/feedback"
	"github.com/yogguru/trainer/internal/identity"
	"github.com/yogguru/trainer/internal/store"
)

// ClientConfig is the server configuration exposed to the frontend.
type ClientConfig struct {
	FeedbackBackend string
	Cooldown        time.Duration
	MQTTSpeaker     bool
}

// AccountHandler serves the current user and client configuration.
type AccountHandler struct {
	*Handler
	client ClientConfig
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(base *Handler, client ClientConfig) *AccountHandler {
	return &AccountHandler{Handler: base, client: client}
}

// RegisterRoutes registers account routes.
func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/me", h.GetMe)
	r.Get("/api/config", h.GetConfig)
}

// GetMe returns the current user's information.
func (h *AccountHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, user)
}

type languageInfo struct {
	Code  domain.Language `json:"code"`
	Name  string          `json:"name"`
	Voice string          `json:"voice"`
}

// GetConfig returns the server configuration for the frontend.
func (h *AccountHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	languages := make([]languageInfo, 0, len(domain.Languages))
	for _, l := range domain.Languages {
		languages = append(languages, languageInfo{Code: l, Name: l.DisplayName(), Voice: l.VoiceTag()})
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"feedback_backend": h.client.FeedbackBackend,
		"ai_enabled":       h.client.FeedbackBackend != "" && h.client.FeedbackBackend != "none",
		"cooldown_seconds": h.client.Cooldown.Seconds(),
		"languages":        languages,
		"library_filters":  catalog.Filters(),
		"default_pose_id":  h.catalog.Default().ID,
		"mqtt_speaker":     h.client.MQTTSpeaker,
	})
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo     store.Repository
	feedback feedback.Checker
	timeout  time.Duration
}

// NewHealthHandler creates a new health handler. checker may be nil.
func NewHealthHandler(repo store.Repository, checker feedback.Checker) *HealthHandler {
	return &HealthHandler{repo: repo, feedback: checker, timeout: 5 * time.Second}
}

// Health returns the health status of the API and its dependencies.
// The feedback backend is reported but never fails the check.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	switch {
	case h.feedback == nil:
		checks["feedback"] = "disabled"
	case h.feedback.Health(ctx) != nil:
		checks["feedback"] = "unavailable"
	default:
		checks["feedback"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
