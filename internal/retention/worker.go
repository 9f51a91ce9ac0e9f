// Package retention prunes old verdict history in the background.
package retention

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is how often the worker sweeps.
const DefaultInterval = time.Hour

// Pruner deletes verdicts created before a cutoff.
type Pruner interface {
	DeleteVerdictsBefore(ctx context.Context, before time.Time) (int64, error)
}

// PruneCallback is called with the number of rows removed by a sweep.
type PruneCallback func(deleted int64)

// Config controls the retention worker.
type Config struct {
	History  time.Duration
	Interval time.Duration
}

// StartWorker runs a background goroutine that periodically removes verdicts
// older than cfg.History. A zero History disables the worker. The returned
// channel closes when the worker exits.
func StartWorker(ctx context.Context, repo Pruner, cfg Config, onPrune PruneCallback) <-chan struct{} {
	done := make(chan struct{})
	if cfg.History <= 0 {
		slog.Info("Retention worker disabled")
		close(done)
		return done
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	ticker := time.NewTicker(cfg.Interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", cfg.Interval, "history", cfg.History)

		sweep(ctx, repo, cfg.History, time.Now(), onPrune)
		for {
			select {
			case now := <-ticker.C:
				sweep(ctx, repo, cfg.History, now, onPrune)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func sweep(ctx context.Context, repo Pruner, history time.Duration, now time.Time, onPrune PruneCallback) {
	cutoff := now.Add(-history)
	deleted, err := repo.DeleteVerdictsBefore(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Retention worker: context canceled during sweep", "error", err)
			return
		}
		slog.Error("Retention worker failed to prune verdicts", "error", err, "cutoff", cutoff)
		return
	}
	if deleted > 0 {
		slog.Info("Retention worker pruned verdicts", "count", deleted, "cutoff", cutoff)
	}
	if onPrune != nil {
		onPrune(deleted)
	}
}
