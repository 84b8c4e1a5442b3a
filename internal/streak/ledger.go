package streak

import "errors"

// ErrNoCredits is returned when spending from an empty ledger.
var ErrNoCredits = errors.New("no break credits available")

// CreditsForStreak is the number of break credits a streak of length n has
// earned: one per milestone reached. It never decreases as n grows.
func CreditsForStreak(n int) int {
	credits := 0
	for _, m := range Milestones {
		if n >= m {
			credits++
		}
	}
	return credits
}

// Ledger is the persisted break-credit state of one task.
type Ledger struct {
	Earned    int
	Available int
	Used      int
}

// Accrue credits whatever streak has earned beyond what was already earned
// and returns the new ledger with the number of credits added. A shorter
// streak than before earns nothing and revokes nothing.
func (l Ledger) Accrue(streak int) (Ledger, int) {
	delta := CreditsForStreak(streak) - l.Earned
	if delta <= 0 {
		return l, 0
	}
	l.Earned += delta
	l.Available += delta
	return l, delta
}

// Spend consumes one available credit.
func (l Ledger) Spend() (Ledger, error) {
	if l.Available <= 0 {
		return l, ErrNoCredits
	}
	l.Available--
	l.Used++
	return l, nil
}
