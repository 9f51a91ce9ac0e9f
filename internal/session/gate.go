package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/yogguru/trainer/internal/domain"
	"github.com/yogguru/trainer/internal/feedback"
)

type messageKind int

const (
	msgFrame messageKind = iota
	msgCompletion
	msgCommand
)

type message struct {
	kind       messageKind
	angles     domain.AngleMap
	completion completion
	cmd        func(*loopState) error
	reply      chan error
}

type completion struct {
	epoch    uint64
	runID    string
	poseID   string
	language domain.Language
	verdict  domain.Verdict
	err      error
	latency  time.Duration
}

// loopState is owned by the gate goroutine.
type loopState struct {
	state    State
	pose     domain.Pose
	language domain.Language
	muted    bool
	verdict  *domain.Verdict

	runID        string
	startedAt    time.Time
	lastRequest  time.Time
	requested    bool
	elapsed      time.Duration
	runningSince time.Time

	epoch       uint64
	epochCtx    context.Context
	epochCancel context.CancelFunc

	counters    Counters
	scored      int
	accuracySum float64
	best        float64
}

// Gate serializes frames, request completions and commands for one trainer
// session. All session state lives on a single goroutine.
type Gate struct {
	cfg     Config
	svc     feedback.Service
	speaker Speaker
	clock   Clock
	metrics Metrics
	obs     Observers
	logger  *slog.Logger

	inbox   chan message
	dropped atomic.Int64

	rootCtx    context.Context
	rootCancel context.CancelFunc

	done      chan struct{}
	closeOnce sync.Once
	closing   chan struct{}
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(g *Gate) { g.clock = c }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithObservers attaches session observers.
func WithObservers(o Observers) Option {
	return func(g *Gate) { g.obs = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// NewGate creates a gate for pose and starts its loop. The gate is Idle.
func NewGate(cfg Config, pose domain.Pose, svc feedback.Service, speaker Speaker, opts ...Option) (*Gate, error) {
	if pose.ID == "" {
		return nil, ErrNoPose
	}
	if svc == nil {
		svc = feedback.Unavailable{}
	}
	cfg = cfg.withDefaults()

	g := &Gate{
		cfg:     cfg,
		svc:     svc,
		speaker: speaker,
		clock:   SystemClock,
		metrics: nopMetrics{},
		inbox:   make(chan message, cfg.InboxSize),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("user_id", cfg.UserID)
	g.rootCtx, g.rootCancel = context.WithCancel(context.Background())

	st := &loopState{
		state:    StateIdle,
		pose:     pose,
		language: cfg.Language,
	}
	st.epochCtx, st.epochCancel = context.WithCancel(g.rootCtx)

	go g.run(st)
	return g, nil
}

func (g *Gate) run(st *loopState) {
	defer close(g.done)
	for {
		select {
		case msg := <-g.inbox:
			g.handle(st, msg)
		case <-g.closing:
			if st.state.Active() {
				_ = g.stop(st)
			}
			st.epochCancel()
			g.rootCancel()
			return
		}
	}
}

func (g *Gate) handle(st *loopState, msg message) {
	switch msg.kind {
	case msgFrame:
		g.handleFrame(st, msg.angles)
	case msgCompletion:
		g.handleCompletion(st, msg.completion)
	case msgCommand:
		err := msg.cmd(st)
		if msg.reply != nil {
			msg.reply <- err
		}
	}
}

func (g *Gate) handleFrame(st *loopState, angles domain.AngleMap) {
	st.counters.Frames++
	if st.state != StateRunning {
		st.counters.Ignored++
		g.metrics.FrameObserved(FrameIgnored)
		return
	}

	now := g.clock.Now()
	if st.requested && now.Sub(st.lastRequest) < g.cfg.Cooldown {
		st.counters.Throttled++
		g.metrics.FrameObserved(FrameThrottled)
		return
	}

	st.lastRequest = now
	st.requested = true
	st.counters.Requests++
	g.metrics.FrameObserved(FrameAccepted)

	req := feedback.Request{
		PoseName:  st.pose.NameEn,
		Measured:  angles.Clone(),
		Target:    st.pose.IdealAngles.Clone(),
		Language:  st.language,
		UserID:    g.cfg.UserID,
		SessionID: st.runID,
	}
	c := completion{
		epoch:    st.epoch,
		runID:    st.runID,
		poseID:   st.pose.ID,
		language: st.language,
	}
	go g.evaluate(st.epochCtx, req, c)
}

func (g *Gate) evaluate(ctx context.Context, req feedback.Request, c completion) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	c.verdict, c.err = g.svc.Evaluate(ctx, req)
	cancel()
	c.latency = time.Since(start)

	select {
	case g.inbox <- message{kind: msgCompletion, completion: c}:
	case <-g.done:
	}
}

func (g *Gate) handleCompletion(st *loopState, c completion) {
	if c.epoch != st.epoch {
		st.counters.Stale++
		g.metrics.FeedbackCompleted(FeedbackStale, c.latency)
		g.logger.Debug("[GATE] Discarding stale verdict", "run_id", c.runID, "pose_id", c.poseID)
		return
	}

	v := c.verdict
	fallback := false
	if c.err != nil {
		if errors.Is(c.err, context.Canceled) {
			g.metrics.FeedbackCompleted(FeedbackCanceled, c.latency)
			g.logger.Debug("[GATE] Feedback request canceled", "run_id", c.runID)
			return
		}
		g.logger.Warn("[GATE] Feedback request failed, using fallback", "error", c.err, "run_id", c.runID, "pose_id", c.poseID)
		v = feedback.Fallback(c.language)
		fallback = true
		st.counters.Fallbacks++
		g.metrics.FeedbackCompleted(FeedbackFallback, c.latency)
	} else {
		g.metrics.FeedbackCompleted(FeedbackOK, c.latency)
		st.scored++
		st.accuracySum += v.Accuracy
		if v.Accuracy > st.best {
			st.best = v.Accuracy
		}
	}

	applied := v.Clone()
	st.verdict = &applied
	st.counters.Verdicts++

	if g.obs.OnVerdict != nil {
		g.obs.OnVerdict(VerdictEvent{
			RunID:    c.runID,
			PoseID:   c.poseID,
			Language: c.language,
			Verdict:  v.Clone(),
			Fallback: fallback,
			At:       g.clock.Now(),
		})
	}

	if !st.muted && v.Message != "" && g.speaker != nil {
		g.speaker.Cancel()
		g.speaker.Speak(v.Message, c.language)
	}
}

// bumpEpoch invalidates every in-flight request.
func (g *Gate) bumpEpoch(st *loopState) {
	st.epoch++
	st.epochCancel()
	st.epochCtx, st.epochCancel = context.WithCancel(g.rootCtx)
}

func (g *Gate) start(st *loopState) error {
	if st.state != StateIdle {
		return ErrInvalidTransition
	}
	now := g.clock.Now()
	st.state = StateRunning
	st.runID = uuid.NewString()
	st.startedAt = now
	st.runningSince = now
	st.elapsed = 0
	st.requested = false
	st.verdict = nil
	st.counters = Counters{}
	g.dropped.Store(0)
	st.scored, st.accuracySum, st.best = 0, 0, 0

	if g.obs.OnStart != nil {
		g.obs.OnStart(Run{ID: st.runID, PoseID: st.pose.ID, Language: st.language, StartedAt: now})
	}
	g.logger.Info("Session started", "run_id", st.runID, "pose_id", st.pose.ID)
	return nil
}

func (g *Gate) pause(st *loopState) error {
	if st.state != StateRunning {
		return ErrInvalidTransition
	}
	st.elapsed += g.clock.Now().Sub(st.runningSince)
	st.state = StatePaused
	return nil
}

func (g *Gate) resume(st *loopState) error {
	if st.state != StatePaused {
		return ErrInvalidTransition
	}
	st.runningSince = g.clock.Now()
	st.state = StateRunning
	return nil
}

func (g *Gate) stop(st *loopState) error {
	if !st.state.Active() {
		return ErrInvalidTransition
	}
	now := g.clock.Now()
	if st.state == StateRunning {
		st.elapsed += now.Sub(st.runningSince)
	}
	g.bumpEpoch(st)
	st.state = StateIdle
	st.verdict = nil
	if g.speaker != nil {
		g.speaker.Cancel()
	}

	summary := Summary{
		RunID:        st.runID,
		PoseID:       st.pose.ID,
		Language:     st.language,
		StartedAt:    st.startedAt,
		EndedAt:      now,
		Active:       st.elapsed,
		Verdicts:     st.scored,
		BestAccuracy: st.best,
	}
	if st.scored > 0 {
		summary.AvgAccuracy = st.accuracySum / float64(st.scored)
	}
	if g.obs.OnStop != nil {
		g.obs.OnStop(summary)
	}
	g.logger.Info("Session stopped", "run_id", st.runID, "active", st.elapsed, "verdicts", st.counters.Verdicts)
	return nil
}

func (g *Gate) selectPose(st *loopState, pose domain.Pose) error {
	if pose.ID == "" {
		return ErrNoPose
	}
	g.bumpEpoch(st)
	st.pose = pose
	st.verdict = nil
	st.requested = false
	return nil
}

func (g *Gate) snapshot(st *loopState) Snapshot {
	elapsed := st.elapsed
	if st.state == StateRunning {
		elapsed += g.clock.Now().Sub(st.runningSince)
	}
	s := Snapshot{
		RunID:    st.runID,
		State:    st.state,
		PoseID:   st.pose.ID,
		PoseName: st.pose.NameEn,
		Language: st.language,
		Muted:    st.muted,
		Elapsed:  elapsed,
		Seconds:  int64(elapsed / time.Second),
		Counters: st.counters,
	}
	s.Counters.Dropped = int(g.dropped.Load())
	if st.verdict != nil {
		v := st.verdict.Clone()
		s.Verdict = &v
	}
	return s
}

// exec runs fn on the gate goroutine and publishes the new state on success.
func (g *Gate) exec(fn func(*loopState) error) error {
	return g.call(func(st *loopState) error {
		if err := fn(st); err != nil {
			return err
		}
		if g.obs.OnState != nil {
			g.obs.OnState(g.snapshot(st))
		}
		return nil
	})
}

// call runs fn on the gate goroutine and waits for its result.
func (g *Gate) call(fn func(*loopState) error) error {
	reply := make(chan error, 1)
	msg := message{kind: msgCommand, cmd: fn, reply: reply}
	select {
	case g.inbox <- msg:
	case <-g.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-g.done:
		return ErrClosed
	}
}

// Start moves the session from Idle to Running.
func (g *Gate) Start() error { return g.exec(g.start) }

// Pause moves the session from Running to Paused. In-flight requests still apply.
func (g *Gate) Pause() error { return g.exec(g.pause) }

// Resume moves the session from Paused to Running.
func (g *Gate) Resume() error { return g.exec(g.resume) }

// Stop ends the active run and discards any in-flight results.
func (g *Gate) Stop() error { return g.exec(g.stop) }

// SelectPose switches the target pose. The next eligible frame triggers a request.
func (g *Gate) SelectPose(pose domain.Pose) error {
	return g.exec(func(st *loopState) error { return g.selectPose(st, pose) })
}

// SetLanguage sets the language used for later requests and speech.
func (g *Gate) SetLanguage(lang domain.Language) error {
	if !lang.Valid() {
		return domain.ErrUnsupportedLanguage
	}
	return g.exec(func(st *loopState) error {
		st.language = lang
		return nil
	})
}

// SetMuted toggles speech. Muting cancels speech in progress.
func (g *Gate) SetMuted(muted bool) error {
	return g.exec(func(st *loopState) error {
		st.muted = muted
		if muted && g.speaker != nil {
			g.speaker.Cancel()
		}
		return nil
	})
}

// Submit queues one frame of measured angles without blocking.
// It returns false when the frame was dropped because the gate is busy or closed.
func (g *Gate) Submit(angles domain.AngleMap) bool {
	select {
	case <-g.done:
		return false
	default:
	}
	select {
	case g.inbox <- message{kind: msgFrame, angles: angles}:
		return true
	default:
		g.dropped.Add(1)
		g.metrics.FrameObserved(FrameDropped)
		return false
	}
}

// Snapshot returns the current session view.
func (g *Gate) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := g.call(func(st *loopState) error {
		snap = g.snapshot(st)
		return nil
	})
	return snap, err
}

// Close stops an active run and terminates the gate goroutine.
func (g *Gate) Close() {
	g.closeOnce.Do(func() {
		close(g.closing)
	})
	<-g.done
}
