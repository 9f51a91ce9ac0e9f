// Package session implements the feedback gate that throttles posture
// evaluation requests for one live trainer session.
package session

import (
	"errors"
	"time"

	"github.com/yogguru/trainer/internal/domain"
)

// DefaultCooldown is the minimum time between two feedback requests.
const DefaultCooldown = 7 * time.Second

// DefaultRequestTimeout bounds a single feedback request.
const DefaultRequestTimeout = 30 * time.Second

var (
	// ErrInvalidTransition is returned when a command does not apply to the current state.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrClosed is returned after the gate has been closed.
	ErrClosed = errors.New("session gate closed")
	// ErrNoPose is returned when a pose has no id.
	ErrNoPose = errors.New("pose is required")
)

// State is the lifecycle state of a session.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// Active reports whether the state is Running or Paused.
func (s State) Active() bool {
	return s == StateRunning || s == StatePaused
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Speaker voices verdict messages.
type Speaker interface {
	Speak(text string, lang domain.Language)
	Cancel()
}

// Metrics receives gate events. Implementations must be safe for concurrent use.
type Metrics interface {
	FrameObserved(outcome string)
	FeedbackCompleted(outcome string, d time.Duration)
}

// Frame outcomes reported to Metrics.
const (
	FrameAccepted  = "accepted"
	FrameThrottled = "throttled"
	FrameIgnored   = "ignored"
	FrameDropped   = "dropped"
)

// Feedback outcomes reported to Metrics.
const (
	FeedbackOK       = "ok"
	FeedbackFallback = "fallback"
	FeedbackStale    = "stale"
	FeedbackCanceled = "canceled"
)

type nopMetrics struct{}

func (nopMetrics) FrameObserved(string)                    {}
func (nopMetrics) FeedbackCompleted(string, time.Duration) {}

// Config holds gate settings.
type Config struct {
	UserID         string
	Cooldown       time.Duration
	RequestTimeout time.Duration
	InboxSize      int
	Language       domain.Language
}

func (c Config) withDefaults() Config {
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 64
	}
	if !c.Language.Valid() {
		c.Language = domain.LanguageEnglish
	}
	return c
}

// Counters tracks what happened to frames and requests in the current run.
type Counters struct {
	Frames    int `json:"frames"`
	Throttled int `json:"throttled"`
	Ignored   int `json:"ignored"`
	Dropped   int `json:"dropped"`
	Requests  int `json:"requests"`
	Verdicts  int `json:"verdicts"`
	Fallbacks int `json:"fallbacks"`
	Stale     int `json:"stale"`
}

// Snapshot is a point-in-time view of the gate.
type Snapshot struct {
	RunID    string          `json:"run_id,omitempty"`
	State    State           `json:"state"`
	PoseID   string          `json:"pose_id"`
	PoseName string          `json:"pose_name"`
	Language domain.Language `json:"language"`
	Muted    bool            `json:"muted"`
	Verdict  *domain.Verdict `json:"verdict"`
	Elapsed  time.Duration   `json:"-"`
	Seconds  int64           `json:"elapsed_seconds"`
	Counters Counters        `json:"counters"`
}

// Run describes a session run that has just started.
type Run struct {
	ID        string
	PoseID    string
	Language  domain.Language
	StartedAt time.Time
}

// VerdictEvent is a verdict applied to the session.
type VerdictEvent struct {
	RunID    string
	PoseID   string
	Language domain.Language
	Verdict  domain.Verdict
	Fallback bool
	At       time.Time
}

// Summary describes a finished run.
type Summary struct {
	RunID        string
	PoseID       string
	Language     domain.Language
	StartedAt    time.Time
	EndedAt      time.Time
	Active       time.Duration
	Verdicts     int
	AvgAccuracy  float64
	BestAccuracy float64
}

// Observers are invoked on the gate goroutine and must not block.
type Observers struct {
	OnStart   func(Run)
	OnState   func(Snapshot)
	OnVerdict func(VerdictEvent)
	OnStop    func(Summary)
}
