package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/yogguru/trainer/internal/domain"
)

var _ Repository = (*SQLiteStore)(nil)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "yogguru.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUserRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.GetUser(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("expected nil user for missing id, got %+v, %v", got, err)
	}

	now := time.Unix(1_760_000_000, 0)
	u := &domain.User{UserID: "u1", Username: "yogi-u1", LastSeenAt: now, CreatedAt: now, UpdatedAt: now}
	if err := s.UpsertUser(ctx, u); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	later := now.Add(time.Hour)
	if err := s.UpdateLastSeen(ctx, "u1", later); err != nil {
		t.Fatalf("UpdateLastSeen failed: %v", err)
	}

	got, err = s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Username != "yogi-u1" || !got.LastSeenAt.Equal(later) || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected user %+v", got)
	}
}

func TestPracticeSessionLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	start := time.Unix(1_760_000_000, 0)

	ps := &domain.PracticeSession{UserID: "u1", PoseID: "tadasana", Language: domain.LanguageHindi, StartedAt: start}
	if err := s.CreatePracticeSession(ctx, ps); err != nil {
		t.Fatalf("CreatePracticeSession failed: %v", err)
	}
	if ps.ID == "" {
		t.Fatal("expected generated session id")
	}

	ps.EndedAt = start.Add(5 * time.Minute)
	ps.ActiveSeconds = 240
	ps.Verdicts = 3
	ps.AvgAccuracy = 71.5
	ps.BestAccuracy = 88
	if err := s.FinishPracticeSession(ctx, ps); err != nil {
		t.Fatalf("FinishPracticeSession failed: %v", err)
	}

	other := &domain.PracticeSession{ID: "old", UserID: "u1", PoseID: "tadasana", Language: domain.LanguageEnglish, StartedAt: start.Add(-48 * time.Hour)}
	if err := s.CreatePracticeSession(ctx, other); err != nil {
		t.Fatalf("CreatePracticeSession failed: %v", err)
	}

	list, err := s.ListPracticeSessions(ctx, "u1", start.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListPracticeSessions failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 session since cutoff, got %d", len(list))
	}
	got := list[0]
	if !got.Finished() || got.ActiveSeconds != 240 || got.BestAccuracy != 88 || got.Language != domain.LanguageHindi {
		t.Fatalf("unexpected session %+v", got)
	}

	all, err := s.ListPracticeSessions(ctx, "u1", time.Time{})
	if err != nil {
		t.Fatalf("ListPracticeSessions failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != ps.ID || all[1].Finished() {
		t.Fatalf("expected newest first and unfinished old session, got %+v", all)
	}

	missing := &domain.PracticeSession{ID: "nope", EndedAt: start}
	if err := s.FinishPracticeSession(ctx, missing); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestVerdictHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	base := time.Unix(1_760_000_000, 0)

	records := []*domain.VerdictRecord{
		{SessionID: "s1", UserID: "u1", PoseID: "tree", CreatedAt: base.Add(-40 * 24 * time.Hour),
			Verdict: domain.Verdict{Accuracy: 40, Message: "old"}},
		{SessionID: "s1", UserID: "u1", PoseID: "tree", CreatedAt: base,
			Verdict: domain.Verdict{Accuracy: 82, Message: "Lift arms", Corrections: []string{"Straighten elbows"}, IsCorrect: true}},
		{SessionID: "s1", UserID: "u1", PoseID: "tree", CreatedAt: base.Add(time.Minute), Fallback: true,
			Verdict: domain.Verdict{Message: "unavailable"}},
		{SessionID: "s2", UserID: "u2", PoseID: "tree", CreatedAt: base,
			Verdict: domain.Verdict{Accuracy: 10, Message: "other user"}},
	}
	for _, r := range records {
		if err := s.RecordVerdict(ctx, r); err != nil {
			t.Fatalf("RecordVerdict failed: %v", err)
		}
		if r.ID == 0 {
			t.Fatal("expected verdict id to be set")
		}
	}

	got, err := s.ListVerdicts(ctx, "u1", base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListVerdicts failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 verdicts, got %d", len(got))
	}
	if !got[0].Verdict.IsCorrect || len(got[0].Verdict.Corrections) != 1 || got[0].Verdict.Corrections[0] != "Straighten elbows" {
		t.Fatalf("unexpected first verdict %+v", got[0])
	}
	if !got[1].Fallback || got[1].Verdict.Corrections == nil {
		t.Fatalf("expected fallback flag and empty corrections, got %+v", got[1])
	}

	deleted, err := s.DeleteVerdictsBefore(ctx, base.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteVerdictsBefore failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	all, err := s.ListVerdicts(ctx, "u1", time.Time{})
	if err != nil {
		t.Fatalf("ListVerdicts failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 verdicts after pruning, got %d", len(all))
	}
}

func TestPing(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
