// Package streak computes completion streaks and the break credits they earn.
package streak

import (
	"math"
	"sort"
	"time"

	"gyst/internal/recurrence"
)

// Milestones are the streak lengths worth celebrating, ascending.
var Milestones = []int{7, 14, 30, 50, 100, 365}

// Stats summarises a completion history.
type Stats struct {
	CurrentStreak    int
	LongestStreak    int
	TotalCompletions int
	CompletionRate   int
}

// Calculate derives streak statistics from completion timestamps.
//
// Completions are reduced to unique calendar days (using each timestamp's own
// location). A run continues while consecutive days are at most the cadence
// interval apart. The run ending on the latest day is current only if today is
// also within one interval of it. The completion rate compares unique days to
// the occurrences expected from start (or the first completion when start is
// zero) through today, as a rounded percentage capped at 100.
func Calculate(completedAt []time.Time, c recurrence.Cadence, start, today time.Time) Stats {
	return CalculateCovered(completedAt, nil, c, start, today)
}

// CalculateCovered is Calculate with covered days: days on which a break
// credit was spent. A covered day keeps a run going across the gap it fills
// but adds nothing to the run length, the total or the completion rate.
// Covered days after today are ignored.
func CalculateCovered(completedAt, covered []time.Time, c recurrence.Cadence, start, today time.Time) Stats {
	days := uniqueDays(completedAt)
	if len(days) == 0 {
		return Stats{}
	}
	today = recurrence.DateOf(today)
	interval := c.IntervalDays()
	if interval < 1 {
		interval = 1
	}

	points := mergeCovered(days, uniqueDays(covered), today)
	run, longest := 0, 0
	for i, p := range points {
		if i > 0 && recurrence.DaysBetween(points[i-1].day, p.day) > interval {
			run = 0
		}
		if p.completed {
			run++
		}
		if run > longest {
			longest = run
		}
	}

	current := 0
	if recurrence.DaysBetween(points[len(points)-1].day, today) <= interval {
		current = run
	}

	return Stats{
		CurrentStreak:    current,
		LongestStreak:    longest,
		TotalCompletions: len(days),
		CompletionRate:   completionRate(days, c, start, today),
	}
}

type point struct {
	day       time.Time
	completed bool
}

// mergeCovered interleaves sorted completion days with sorted covered days
// up to today. A day that is both counts as completed.
func mergeCovered(days, covered []time.Time, today time.Time) []point {
	out := make([]point, 0, len(days)+len(covered))
	i, j := 0, 0
	for i < len(days) || j < len(covered) {
		if j < len(covered) && covered[j].After(today) {
			j = len(covered)
			continue
		}
		switch {
		case j == len(covered) || (i < len(days) && days[i].Before(covered[j])):
			out = append(out, point{day: days[i], completed: true})
			i++
		case i == len(days) || covered[j].Before(days[i]):
			out = append(out, point{day: covered[j]})
			j++
		default:
			out = append(out, point{day: days[i], completed: true})
			i++
			j++
		}
	}
	return out
}

func uniqueDays(ts []time.Time) []time.Time {
	set := recurrence.NewDateSet()
	var out []time.Time
	for _, t := range ts {
		if t.IsZero() || set.Has(t) {
			continue
		}
		set.Add(t)
		out = append(out, recurrence.DateOf(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func completionRate(days []time.Time, c recurrence.Cadence, start, today time.Time) int {
	from := recurrence.DateOf(start)
	if from.IsZero() {
		from = days[0]
	}
	expected := recurrence.Occurrences(c, from, today)
	if expected <= 0 {
		return 0
	}
	actual := 0
	for _, d := range days {
		if !d.Before(from) && !d.After(today) {
			actual++
		}
	}
	rate := int(math.Round(float64(actual) / float64(expected) * 100))
	if rate > 100 {
		rate = 100
	}
	return rate
}

// HasReachedMilestone reports the highest milestone that newStreak reaches
// and previousStreak had not.
func HasReachedMilestone(newStreak, previousStreak int) (int, bool) {
	reached := 0
	for _, m := range Milestones {
		if previousStreak < m && newStreak >= m {
			reached = m
		}
	}
	return reached, reached > 0
}

// NextMilestone returns the first milestone above streak, or 0 past the last.
func NextMilestone(streak int) int {
	for _, m := range Milestones {
		if m > streak {
			return m
		}
	}
	return 0
}
