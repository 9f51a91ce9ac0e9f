package trainer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yogguru/trainer/internal/domain"
	"github.com/yogguru/trainer/internal/session"
	"github.com/yogguru/trainer/internal/store"
)

const (
	historyQueueSize    = 256
	historyWriteTimeout = 5 * time.Second
	historyCloseTimeout = 5 * time.Second
)

type historyOp struct {
	name string
	fn   func(ctx context.Context) error
}

// HistoryWriter persists run history off the gate goroutine. Writes for one
// connection are applied in order by a single worker.
type HistoryWriter struct {
	repo   store.Repository
	userID string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	ops    chan historyOp
	wg     sync.WaitGroup
}

// NewHistoryWriter creates a writer and starts its worker.
func NewHistoryWriter(repo store.Repository, userID string, logger *slog.Logger) *HistoryWriter {
	if logger == nil {
		logger = slog.Default()
	}
	w := &HistoryWriter{
		repo:   repo,
		userID: userID,
		logger: logger,
		ops:    make(chan historyOp, historyQueueSize),
	}
	w.wg.Add(1)
	go w.process()
	return w
}

// RunStarted records a new practice session.
func (w *HistoryWriter) RunStarted(run session.Run) {
	ps := &domain.PracticeSession{
		ID:        run.ID,
		UserID:    w.userID,
		PoseID:    run.PoseID,
		Language:  run.Language,
		StartedAt: run.StartedAt,
	}
	w.enqueue(historyOp{name: "create_session", fn: func(ctx context.Context) error {
		return w.repo.CreatePracticeSession(ctx, ps)
	}})
}

// VerdictApplied appends a verdict to the history.
func (w *HistoryWriter) VerdictApplied(ev session.VerdictEvent) {
	rec := &domain.VerdictRecord{
		SessionID: ev.RunID,
		UserID:    w.userID,
		PoseID:    ev.PoseID,
		Verdict:   ev.Verdict,
		Fallback:  ev.Fallback,
		CreatedAt: ev.At,
	}
	w.enqueue(historyOp{name: "record_verdict", fn: func(ctx context.Context) error {
		return w.repo.RecordVerdict(ctx, rec)
	}})
}

// RunStopped stores the totals of a finished run.
func (w *HistoryWriter) RunStopped(s session.Summary) {
	ps := &domain.PracticeSession{
		ID:            s.RunID,
		UserID:        w.userID,
		PoseID:        s.PoseID,
		Language:      s.Language,
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		ActiveSeconds: int64(s.Active / time.Second),
		Verdicts:      s.Verdicts,
		AvgAccuracy:   s.AvgAccuracy,
		BestAccuracy:  s.BestAccuracy,
	}
	w.enqueue(historyOp{name: "finish_session", fn: func(ctx context.Context) error {
		return w.repo.FinishPracticeSession(ctx, ps)
	}})
}

func (w *HistoryWriter) enqueue(op historyOp) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.logger.Warn("[HISTORY] Writer closed, dropping write", "op", op.name, "user_id", w.userID)
		return
	}
	select {
	case w.ops <- op:
	default:
		w.logger.Warn("[HISTORY] Queue full, dropping write",
			"op", op.name,
			"user_id", w.userID,
			"queue_len", len(w.ops),
		)
	}
}

func (w *HistoryWriter) process() {
	defer w.wg.Done()
	for op := range w.ops {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
		err := op.fn(ctx)
		cancel()
		if err != nil {
			w.logger.Error("[HISTORY] Write failed", "op", op.name, "user_id", w.userID, "error", err)
			continue
		}
		if d := time.Since(start); d > 100*time.Millisecond {
			w.logger.Warn("[HISTORY] Slow write", "op", op.name, "user_id", w.userID, "duration_ms", d.Milliseconds())
		}
	}
}

// Close flushes queued writes and stops the worker.
func (w *HistoryWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ops)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(historyCloseTimeout):
		w.logger.Warn("[HISTORY] Flush timeout", "user_id", w.userID, "queue_remaining", len(w.ops))
	}
}
