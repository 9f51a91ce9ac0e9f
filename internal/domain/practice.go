package domain

import (
	"time"
)

// PracticeSession is one start-to-stop trainer session for a user.
type PracticeSession struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	PoseID        string    `json:"pose_id"`
	Language      Language  `json:"language"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at,omitempty"`
	ActiveSeconds int64     `json:"active_seconds"`
	Verdicts      int       `json:"verdicts"`
	AvgAccuracy   float64   `json:"avg_accuracy"`
	BestAccuracy  float64   `json:"best_accuracy"`
}

// Finished returns true once the session has an end time.
func (p *PracticeSession) Finished() bool {
	return !p.EndedAt.IsZero()
}

// VerdictRecord is a verdict persisted for progress tracking.
type VerdictRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	PoseID    string    `json:"pose_id"`
	Verdict   Verdict   `json:"verdict"`
	Fallback  bool      `json:"fallback"`
	CreatedAt time.Time `json:"created_at"`
}

// AccuracyPoint is the mean accuracy for one day.
type AccuracyPoint struct {
	Date  string  `json:"date"`
	Score float64 `json:"score"`
}

// Progress summarizes a user's practice for the dashboard.
type Progress struct {
	Streak           int                `json:"streak"`
	CaloriesBurned   int                `json:"caloriesBurned"`
	FlexibilityScore int                `json:"flexibilityScore"`
	AccuracyHistory  []AccuracyPoint    `json:"accuracyHistory"`
	MasteryLevels    map[string]float64 `json:"masteryLevels"`
	ActiveMinutes    int                `json:"activeMinutes"`
	Sessions         int                `json:"sessions"`
}
