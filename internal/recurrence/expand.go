package recurrence

import "time"

// DateLayout is the canonical textual form of a date-only value.
const DateLayout = "2006-01-02"

// DateOf strips the clock from t, keeping t's own calendar day, and returns it
// as midnight UTC so that dates compare and hash consistently.
func DateOf(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a date-only value.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// DaysBetween returns the whole number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// DateSet is a set of calendar dates.
type DateSet map[string]struct{}

// NewDateSet builds a set from the calendar days of ts.
func NewDateSet(ts ...time.Time) DateSet {
	s := make(DateSet, len(ts))
	for _, t := range ts {
		s.Add(t)
	}
	return s
}

func (s DateSet) Add(t time.Time) {
	s[DateOf(t).Format(DateLayout)] = struct{}{}
}

func (s DateSet) Has(t time.Time) bool {
	_, ok := s[DateOf(t).Format(DateLayout)]
	return ok
}

// Expand walks [start, end] one calendar day at a time and returns, in
// ascending order, the days on which c wants an instance and existing does
// not already hold one.
func Expand(c Cadence, start, end time.Time, existing DateSet) []time.Time {
	start, end = DateOf(start), DateOf(end)
	var out []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if existing.Has(day) {
			continue
		}
		if c.Matches(day) {
			out = append(out, day)
		}
	}
	return out
}

// Occurrences counts the days in [start, end] on which c expects an instance.
func Occurrences(c Cadence, start, end time.Time) int {
	return len(Expand(c, start, end, nil))
}
