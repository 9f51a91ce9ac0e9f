// Package domain contains core domain types for the YogGuru trainer.
package domain

import (
	"time"
)

// User represents an anonymous practitioner identified by a device cookie.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsIdle returns true if the user has not been seen within the given window.
func (u *User) IsIdle(window time.Duration, now time.Time) bool {
	return now.Sub(u.LastSeenAt) > window
}
