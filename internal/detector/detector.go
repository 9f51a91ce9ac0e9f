// Package detector defines the pose detector boundary.
package detector

import (
	"context"
	"errors"
	"sync"

	"github.com/yogguru/trainer/internal/domain"
)

// ErrDisposed is returned when initializing a disposed detector.
var ErrDisposed = errors.New("detector disposed")

// Detector produces one landmark set per processed video frame.
type Detector interface {
	Initialize(ctx context.Context) error
	OnFrame(fn func(domain.LandmarkSet))
	Dispose() error
}

// Remote is a Detector whose frames are produced elsewhere, such as the
// in-browser pose estimator, and pushed in over a connection.
type Remote struct {
	mu          sync.Mutex
	initialized bool
	disposed    bool
	fn          func(domain.LandmarkSet)
}

// NewRemote creates an uninitialized remote detector.
func NewRemote() *Remote {
	return &Remote{}
}

// Initialize enables frame delivery.
func (r *Remote) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrDisposed
	}
	r.initialized = true
	return nil
}

// OnFrame registers the frame callback, replacing any previous one.
func (r *Remote) OnFrame(fn func(domain.LandmarkSet)) {
	r.mu.Lock()
	r.fn = fn
	r.mu.Unlock()
}

// Dispose stops frame delivery for good.
func (r *Remote) Dispose() error {
	r.mu.Lock()
	r.disposed = true
	r.fn = nil
	r.mu.Unlock()
	return nil
}

// Push delivers one frame to the callback. Frames with no landmarks, frames
// before Initialize and frames after Dispose are ignored.
func (r *Remote) Push(set domain.LandmarkSet) bool {
	if len(set) == 0 {
		return false
	}
	r.mu.Lock()
	fn := r.fn
	ok := r.initialized && !r.disposed && fn != nil
	r.mu.Unlock()
	if !ok {
		return false
	}
	fn(set)
	return true
}
