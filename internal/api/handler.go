// Package api provides HTTP handlers for the trainer REST API.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/yogguru/trainer/internal/catalog"
	"github.com/yogguru/trainer/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	repo    store.Repository
	catalog *catalog.Catalog
	now     func() time.Time
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, cat *catalog.Catalog) *Handler {
	return &Handler{
		repo:    repo,
		catalog: cat,
		now:     time.Now,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
