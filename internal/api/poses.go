package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yogguru/trainer/internal/catalog"
)

// PoseHandler serves the pose library.
type PoseHandler struct {
	*Handler
}

// NewPoseHandler creates a new pose handler.
func NewPoseHandler(base *Handler) *PoseHandler {
	return &PoseHandler{Handler: base}
}

// RegisterRoutes registers pose library routes.
func (h *PoseHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/poses", h.ListPoses)
	r.Get("/api/poses/{id}", h.GetPose)
}

// ListPoses returns poses matching the filter and q query parameters.
func (h *PoseHandler) ListPoses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	JSON(w, http.StatusOK, h.catalog.Filter(q.Get("filter"), q.Get("q")))
}

// GetPose returns a single pose.
func (h *PoseHandler) GetPose(w http.ResponseWriter, r *http.Request) {
	pose, err := h.catalog.Get(chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrPoseNotFound) {
		Error(w, http.StatusNotFound, "pose not found")
		return
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, pose)
}
