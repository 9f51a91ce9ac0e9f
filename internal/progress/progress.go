// Package progress derives dashboard statistics from practice history.
package progress

import (
	"math"
	"time"

	"github.com/yogguru/trainer/internal/domain"
)

// CaloriesPerMinute is the burn rate applied to active practice time.
const CaloriesPerMinute = 3.7

const (
	historyDays     = 7
	flexibilityDays = 30
	dayLayout       = "2006-01-02"
)

// Compute summarizes sessions and verdicts as of now. Days are calendar days
// in now's location. Fallback verdicts carry no score and are skipped.
func Compute(now time.Time, sessions []domain.PracticeSession, verdicts []domain.VerdictRecord) domain.Progress {
	loc := now.Location()
	today := startOfDay(now)

	p := domain.Progress{
		AccuracyHistory: make([]domain.AccuracyPoint, 0, historyDays),
		MasteryLevels:   make(map[string]float64),
	}

	var activeSeconds int64
	practiced := make(map[string]bool)
	for _, s := range sessions {
		activeSeconds += s.ActiveSeconds
		p.Sessions++
		day := s.StartedAt
		if s.Finished() {
			day = s.EndedAt
		}
		practiced[day.In(loc).Format(dayLayout)] = true
	}
	p.ActiveMinutes = int(activeSeconds / 60)
	p.CaloriesBurned = int(math.Round(float64(activeSeconds) / 60 * CaloriesPerMinute))
	p.Streak = streak(today, practiced)

	daily := make(map[string]*mean)
	perPose := make(map[string]map[string]*mean)
	flex := &mean{}
	flexFrom := today.AddDate(0, 0, -(flexibilityDays - 1))
	for _, v := range verdicts {
		if v.Fallback {
			continue
		}
		at := v.CreatedAt.In(loc)
		day := at.Format(dayLayout)
		acc := v.Verdict.Accuracy

		if daily[day] == nil {
			daily[day] = &mean{}
		}
		daily[day].add(acc)

		if perPose[v.PoseID] == nil {
			perPose[v.PoseID] = make(map[string]*mean)
		}
		if perPose[v.PoseID][day] == nil {
			perPose[v.PoseID][day] = &mean{}
		}
		perPose[v.PoseID][day].add(acc)

		if !at.Before(flexFrom) {
			flex.add(acc)
		}
	}
	p.FlexibilityScore = int(math.Round(flex.value()))

	for i := historyDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format(dayLayout)
		point := domain.AccuracyPoint{Date: day}
		if m := daily[day]; m != nil {
			point.Score = round1(m.value())
		}
		p.AccuracyHistory = append(p.AccuracyHistory, point)
	}

	for pose, days := range perPose {
		best := 0.0
		for _, m := range days {
			best = math.Max(best, m.value())
		}
		p.MasteryLevels[pose] = round1(best)
	}
	return p
}

// streak counts consecutive practice days ending today, or yesterday when
// today has no practice yet.
func streak(today time.Time, practiced map[string]bool) int {
	day := today
	if !practiced[day.Format(dayLayout)] {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for practiced[day.Format(dayLayout)] {
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

func (m *mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}
