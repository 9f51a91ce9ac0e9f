// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/yogguru/trainer/internal/domain"
)

// Repository persists users, practice sessions and verdict history.
type Repository interface {
	// GetUser retrieves a user by their user ID. It returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// CreatePracticeSession records the start of a trainer run.
	CreatePracticeSession(ctx context.Context, session *domain.PracticeSession) error

	// FinishPracticeSession stores the end time and totals of a run.
	FinishPracticeSession(ctx context.Context, session *domain.PracticeSession) error

	// RecordVerdict appends a verdict to the history and sets its ID.
	RecordVerdict(ctx context.Context, record *domain.VerdictRecord) error

	// ListPracticeSessions returns a user's sessions started at or after since, newest first.
	ListPracticeSessions(ctx context.Context, userID string, since time.Time) ([]domain.PracticeSession, error)

	// ListVerdicts returns a user's verdicts created at or after since, oldest first.
	ListVerdicts(ctx context.Context, userID string, since time.Time) ([]domain.VerdictRecord, error)

	// DeleteVerdictsBefore prunes verdict history older than before.
	DeleteVerdictsBefore(ctx context.Context, before time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
