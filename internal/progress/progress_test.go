package progress

import (
	"testing"
	"time"

	"github.com/yogguru/trainer/internal/domain"
)

var now = time.Date(2026, 5, 24, 18, 30, 0, 0, time.UTC)

func daysAgo(n int, hour int) time.Time {
	d := now.AddDate(0, 0, -n)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

func practice(n int, seconds int64) domain.PracticeSession {
	start := daysAgo(n, 8)
	return domain.PracticeSession{
		StartedAt:     start,
		EndedAt:       start.Add(time.Duration(seconds) * time.Second),
		ActiveSeconds: seconds,
	}
}

func verdict(n int, pose string, acc float64) domain.VerdictRecord {
	return domain.VerdictRecord{PoseID: pose, CreatedAt: daysAgo(n, 9), Verdict: domain.Verdict{Accuracy: acc}}
}

func TestStreak(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		days []int
		want int
	}{
		{"none", nil, 0},
		{"today only", []int{0}, 1},
		{"yesterday keeps streak alive", []int{1, 2, 3}, 3},
		{"gap breaks streak", []int{0, 1, 3, 4}, 2},
		{"two days ago is broken", []int{2, 3}, 0},
		{"multiple sessions per day", []int{0, 0, 1}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sessions []domain.PracticeSession
			for _, d := range tt.days {
				sessions = append(sessions, practice(d, 60))
			}
			if got := Compute(now, sessions, nil).Streak; got != tt.want {
				t.Fatalf("streak = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCaloriesAndMinutes(t *testing.T) {
	t.Parallel()

	p := Compute(now, []domain.PracticeSession{practice(0, 600), practice(1, 300)}, nil)
	if p.ActiveMinutes != 15 {
		t.Fatalf("active minutes = %d, want 15", p.ActiveMinutes)
	}
	if p.CaloriesBurned != 56 {
		t.Fatalf("calories = %d, want 56 (15 min x 3.7)", p.CaloriesBurned)
	}
	if p.Sessions != 2 {
		t.Fatalf("sessions = %d", p.Sessions)
	}
}

func TestAccuracyHistoryAndMastery(t *testing.T) {
	t.Parallel()

	verdicts := []domain.VerdictRecord{
		verdict(0, "tree", 80),
		verdict(0, "tree", 90),
		verdict(2, "tree", 95),
		verdict(2, "warrior", 60),
		verdict(10, "warrior", 70),
		verdict(40, "warrior", 10),
		{PoseID: "tree", CreatedAt: daysAgo(0, 10), Fallback: true},
	}
	p := Compute(now, nil, verdicts)

	if len(p.AccuracyHistory) != 7 {
		t.Fatalf("history length = %d", len(p.AccuracyHistory))
	}
	last := p.AccuracyHistory[6]
	if last.Date != "2026-05-24" || last.Score != 85 {
		t.Fatalf("today = %+v, want 2026-05-24 at 85", last)
	}
	if got := p.AccuracyHistory[4]; got.Date != "2026-05-22" || got.Score != 77.5 {
		t.Fatalf("two days ago = %+v", got)
	}
	if p.AccuracyHistory[5].Score != 0 {
		t.Fatalf("day without practice should score 0, got %+v", p.AccuracyHistory[5])
	}

	if p.MasteryLevels["tree"] != 95 {
		t.Fatalf("tree mastery = %v, want 95", p.MasteryLevels["tree"])
	}
	if p.MasteryLevels["warrior"] != 70 {
		t.Fatalf("warrior mastery = %v, want 70", p.MasteryLevels["warrior"])
	}

	// 80, 90, 95, 60, 70 within 30 days.
	if p.FlexibilityScore != 79 {
		t.Fatalf("flexibility = %d, want 79", p.FlexibilityScore)
	}
}

func TestEmptyHistory(t *testing.T) {
	t.Parallel()

	p := Compute(now, nil, nil)
	if p.Streak != 0 || p.FlexibilityScore != 0 || p.CaloriesBurned != 0 {
		t.Fatalf("unexpected progress %+v", p)
	}
	if p.MasteryLevels == nil || len(p.AccuracyHistory) != 7 {
		t.Fatal("expected initialized collections")
	}
}
