package streak

import (
	"errors"
	"testing"
	"time"

	"gyst/internal/recurrence"
)

var base = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// onDays returns one completion at 09:00 on each given day offset (day 1 = base).
func onDays(days ...int) []time.Time {
	out := make([]time.Time, len(days))
	for i, d := range days {
		out[i] = base.AddDate(0, 0, d-1).Add(9 * time.Hour)
	}
	return out
}

func dayN(n int) time.Time {
	return base.AddDate(0, 0, n-1)
}

var daily = recurrence.Cadence{Kind: recurrence.Daily}

func TestCalculateEmpty(t *testing.T) {
	if got := Calculate(nil, daily, time.Time{}, dayN(1)); got != (Stats{}) {
		t.Fatalf("got %+v, want zero stats", got)
	}
}

func TestCalculateStreakContinuity(t *testing.T) {
	got := Calculate(onDays(1, 2, 3, 10), daily, time.Time{}, dayN(10))
	if got.CurrentStreak != 1 {
		t.Errorf("CurrentStreak = %d, want 1", got.CurrentStreak)
	}
	if got.LongestStreak != 3 {
		t.Errorf("LongestStreak = %d, want 3", got.LongestStreak)
	}
	if got.TotalCompletions != 4 {
		t.Errorf("TotalCompletions = %d, want 4", got.TotalCompletions)
	}
	if got.CompletionRate != 40 {
		t.Errorf("CompletionRate = %d, want 40", got.CompletionRate)
	}
}

func TestCalculateStaleStreakIsBroken(t *testing.T) {
	got := Calculate(onDays(1, 2, 3), daily, time.Time{}, dayN(5))
	if got.CurrentStreak != 0 {
		t.Errorf("CurrentStreak = %d, want 0", got.CurrentStreak)
	}
	if got.LongestStreak != 3 {
		t.Errorf("LongestStreak = %d, want 3", got.LongestStreak)
	}

	// Completed yesterday: still current.
	got = Calculate(onDays(1, 2, 3), daily, time.Time{}, dayN(4))
	if got.CurrentStreak != 3 {
		t.Errorf("CurrentStreak = %d, want 3", got.CurrentStreak)
	}
}

func TestCalculateCustomToleranceBoundary(t *testing.T) {
	every3 := recurrence.Cadence{Kind: recurrence.Custom, Interval: 3, Unit: recurrence.Days, Anchor: dayN(1)}

	got := Calculate(onDays(1, 4, 7, 10), every3, time.Time{}, dayN(10))
	if got.CurrentStreak != 4 || got.LongestStreak != 4 {
		t.Errorf("3-day spacing: got %+v, want current=longest=4", got)
	}
	if got.CompletionRate != 100 {
		t.Errorf("CompletionRate = %d, want 100", got.CompletionRate)
	}

	got = Calculate(onDays(1, 5, 9), every3, time.Time{}, dayN(9))
	if got.CurrentStreak != 1 || got.LongestStreak != 1 {
		t.Errorf("4-day spacing: got %+v, want current=longest=1", got)
	}
}

func TestCalculateDeduplicatesSameDay(t *testing.T) {
	completions := append(onDays(1, 2), dayN(1).Add(20*time.Hour), dayN(2).Add(7*time.Hour))
	got := Calculate(completions, daily, time.Time{}, dayN(2))
	if got.TotalCompletions != 2 {
		t.Errorf("TotalCompletions = %d, want 2", got.TotalCompletions)
	}
	if got.CurrentStreak != 2 {
		t.Errorf("CurrentStreak = %d, want 2", got.CurrentStreak)
	}
}

func TestCalculateUnorderedInput(t *testing.T) {
	got := Calculate(onDays(3, 1, 2), daily, time.Time{}, dayN(3))
	if got.CurrentStreak != 3 {
		t.Fatalf("CurrentStreak = %d, want 3", got.CurrentStreak)
	}
}

func TestCalculateRateFromStartDate(t *testing.T) {
	weekly := recurrence.Cadence{Kind: recurrence.Weekly, Anchor: dayN(1)}
	// Four weekly occurrences (days 1, 8, 15, 22); two completed.
	got := Calculate(onDays(8, 22), weekly, dayN(1), dayN(22))
	if got.CompletionRate != 50 {
		t.Fatalf("CompletionRate = %d, want 50", got.CompletionRate)
	}
	if got.CurrentStreak != 1 {
		t.Fatalf("CurrentStreak = %d, want 1 (14-day gap breaks a weekly run)", got.CurrentStreak)
	}
}

func TestCalculateCoveredBridgesGap(t *testing.T) {
	covered := []time.Time{dayN(8)}

	got := CalculateCovered(onDays(1, 2, 3, 4, 5, 6, 7, 9), covered, daily, time.Time{}, dayN(9))
	if got.CurrentStreak != 8 || got.LongestStreak != 8 {
		t.Fatalf("bridged run: got %+v, want current=longest=8", got)
	}
	if got.TotalCompletions != 8 {
		t.Fatalf("TotalCompletions = %d, want 8", got.TotalCompletions)
	}

	plain := Calculate(onDays(1, 2, 3, 4, 5, 6, 7, 9), daily, time.Time{}, dayN(9))
	if plain.CurrentStreak != 1 {
		t.Fatalf("without cover CurrentStreak = %d, want 1", plain.CurrentStreak)
	}
}

func TestCalculateCoveredKeepsStreakCurrent(t *testing.T) {
	got := CalculateCovered(onDays(1, 2, 3), []time.Time{dayN(4)}, daily, time.Time{}, dayN(5))
	if got.CurrentStreak != 3 {
		t.Fatalf("CurrentStreak = %d, want 3", got.CurrentStreak)
	}
	if got := Calculate(onDays(1, 2, 3), daily, time.Time{}, dayN(5)); got.CurrentStreak != 0 {
		t.Fatalf("uncovered CurrentStreak = %d, want 0", got.CurrentStreak)
	}
}

func TestCalculateCoveredEdges(t *testing.T) {
	tests := []struct {
		name        string
		completed   []time.Time
		covered     []time.Time
		today       time.Time
		wantCurrent int
	}{
		{"future cover ignored", onDays(1, 2, 3), []time.Time{dayN(20)}, dayN(3), 3},
		{"cover cannot span a wider gap", onDays(1, 5), []time.Time{dayN(3)}, dayN(5), 1},
		{"cover on a completed day", onDays(1, 2), []time.Time{dayN(2)}, dayN(2), 2},
		{"cover alone earns nothing", nil, []time.Time{dayN(1)}, dayN(1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCovered(tt.completed, tt.covered, daily, time.Time{}, tt.today)
			if got.CurrentStreak != tt.wantCurrent {
				t.Fatalf("CurrentStreak = %d, want %d (%+v)", got.CurrentStreak, tt.wantCurrent, got)
			}
		})
	}
}

func TestHasReachedMilestone(t *testing.T) {
	tests := []struct {
		name          string
		next, prev    int
		wantMilestone int
		wantReached   bool
	}{
		{"crosses seven", 10, 6, 7, true},
		{"exactly seven", 7, 6, 7, true},
		{"already past", 8, 7, 0, false},
		{"below first", 6, 5, 0, false},
		{"jump reports highest", 15, 6, 14, true},
		{"far jump", 400, 0, 365, true},
		{"streak dropped", 3, 20, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := HasReachedMilestone(tt.next, tt.prev)
			if m != tt.wantMilestone || ok != tt.wantReached {
				t.Fatalf("HasReachedMilestone(%d, %d) = %d, %v; want %d, %v", tt.next, tt.prev, m, ok, tt.wantMilestone, tt.wantReached)
			}
		})
	}
}

func TestNextMilestone(t *testing.T) {
	for in, want := range map[int]int{0: 7, 6: 7, 7: 14, 49: 50, 364: 365, 365: 0} {
		if got := NextMilestone(in); got != want {
			t.Errorf("NextMilestone(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestCreditsForStreakMonotonic(t *testing.T) {
	prev := 0
	for n := 0; n <= 400; n++ {
		c := CreditsForStreak(n)
		if c < prev {
			t.Fatalf("CreditsForStreak(%d) = %d < %d", n, c, prev)
		}
		prev = c
	}
	if CreditsForStreak(6) != 0 || CreditsForStreak(7) != 1 || CreditsForStreak(30) != 3 {
		t.Fatal("unexpected credit schedule")
	}
}

func TestLedgerAvailableNeverDecreasesOnAccrual(t *testing.T) {
	streaks := []int{1, 2, 3, 4, 5, 6, 7, 8, 1, 2, 3, 7, 14, 2, 30}
	var l Ledger
	prevAvailable := 0
	for _, s := range streaks {
		var delta int
		l, delta = l.Accrue(s)
		if delta < 0 {
			t.Fatalf("negative delta at streak %d", s)
		}
		if l.Available < prevAvailable {
			t.Fatalf("available dropped from %d to %d at streak %d", prevAvailable, l.Available, s)
		}
		if l.Available != l.Earned-l.Used {
			t.Fatalf("ledger out of balance: %+v", l)
		}
		prevAvailable = l.Available
	}
	if l.Earned != 3 {
		t.Fatalf("Earned = %d, want 3", l.Earned)
	}
}

func TestLedgerAccrueDelta(t *testing.T) {
	l, delta := Ledger{}.Accrue(7)
	if delta != 1 || l.Earned != 1 || l.Available != 1 {
		t.Fatalf("got %+v delta %d", l, delta)
	}
	l, delta = l.Accrue(8)
	if delta != 0 || l.Available != 1 {
		t.Fatalf("got %+v delta %d", l, delta)
	}
}

func TestLedgerSpend(t *testing.T) {
	l := Ledger{Earned: 1, Available: 1}
	l, err := l.Spend()
	if err != nil {
		t.Fatal(err)
	}
	if l.Available != 0 || l.Used != 1 {
		t.Fatalf("after spend: %+v", l)
	}
	if _, err := l.Spend(); !errors.Is(err, ErrNoCredits) {
		t.Fatalf("err = %v, want ErrNoCredits", err)
	}
}
