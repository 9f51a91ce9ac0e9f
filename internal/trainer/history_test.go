package trainer

import (
	"testing"
	"time"

	"github.com/yogguru/trainer/internal/domain"
	"github.com/yogguru/trainer/internal/session"
)

func TestHistoryWriter_PersistsInOrder(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	w := NewHistoryWriter(repo, "user-1", nil)

	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	w.RunStarted(session.Run{ID: "run-1", PoseID: "tadasana", Language: domain.LanguageHindi, StartedAt: start})
	w.VerdictApplied(session.VerdictEvent{
		RunID:   "run-1",
		PoseID:  "tadasana",
		Verdict: domain.Verdict{Accuracy: 70, Message: "ok"},
		At:      start.Add(10 * time.Second),
	})
	w.RunStopped(session.Summary{
		RunID:        "run-1",
		PoseID:       "tadasana",
		StartedAt:    start,
		EndedAt:      start.Add(time.Minute),
		Active:       45 * time.Second,
		Verdicts:     1,
		AvgAccuracy:  70,
		BestAccuracy: 70,
	})
	w.Close()

	created, finished, verdicts := repo.counts()
	if created != 1 || finished != 1 || verdicts != 1 {
		t.Fatalf("counts = %d/%d/%d, want 1/1/1", created, finished, verdicts)
	}
	if got := repo.created[0]; got.UserID != "user-1" || got.Language != domain.LanguageHindi {
		t.Errorf("created = %+v", got)
	}
	if got := repo.verdicts[0]; got.SessionID != "run-1" || got.UserID != "user-1" || got.Verdict.Accuracy != 70 {
		t.Errorf("verdict = %+v", got)
	}
	if got := repo.finished[0]; got.ActiveSeconds != 45 || got.EndedAt.IsZero() {
		t.Errorf("finished = %+v", got)
	}
}

func TestHistoryWriter_DropsAfterClose(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	w := NewHistoryWriter(repo, "user-1", nil)
	w.Close()
	w.Close()

	w.RunStarted(session.Run{ID: "late"})

	if created, _, _ := repo.counts(); created != 0 {
		t.Errorf("created = %d after close, want 0", created)
	}
}
