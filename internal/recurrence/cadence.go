// Package recurrence expands a task cadence into the calendar dates on which
// an instance should exist. All arithmetic is on date-only values.
package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidCadence is wrapped by every cadence validation failure.
var ErrInvalidCadence = errors.New("invalid cadence")

// Kind selects the expansion rule.
type Kind string

const (
	Daily  Kind = "daily"
	Weekly Kind = "weekly"
	Custom Kind = "custom"
)

// Unit is the step unit of a custom cadence.
type Unit string

const (
	Days   Unit = "days"
	Weeks  Unit = "weeks"
	Months Unit = "months"
)

// Pattern is the structured recurrence overlay as persisted on a task.
type Pattern struct {
	WeekdaysOnly bool  `json:"weekdaysOnly,omitempty"`
	DaysOfWeek   []int `json:"daysOfWeek,omitempty"`
	Interval     int   `json:"interval,omitempty"`
	Unit         Unit  `json:"unit,omitempty"`
}

// Cadence is the single source of truth for how a task repeats.
//
// Daily uses WeekdaysOnly. Weekly uses DaysOfWeek, defaulting to the weekday
// of Anchor. Custom uses Interval and Unit counted from Anchor; a Months unit
// matches on Anchor's day-of-month and never rolls over in shorter months.
type Cadence struct {
	Kind         Kind
	WeekdaysOnly bool
	DaysOfWeek   []time.Weekday
	Interval     int
	Unit         Unit
	Anchor       time.Time
}

// FromLegacy normalises the frequency enum, the custom day count and the
// optional pattern overlay into one Cadence. "monthly" is accepted as a
// one-month custom cadence. The custom day count must be zero unless the
// frequency is custom.
func FromLegacy(frequency string, customDays int, pattern *Pattern, anchor time.Time) (Cadence, error) {
	var p Pattern
	if pattern != nil {
		p = *pattern
	}
	c := Cadence{Anchor: DateOf(anchor), WeekdaysOnly: p.WeekdaysOnly}

	kind := Kind(strings.ToLower(strings.TrimSpace(frequency)))
	if customDays != 0 && kind != Custom {
		return Cadence{}, fmt.Errorf("%w: custom_frequency_days is only allowed for a custom cadence", ErrInvalidCadence)
	}

	switch kind {
	case Daily:
		c.Kind = Daily
	case Weekly:
		c.Kind = Weekly
		days, err := weekdays(p.DaysOfWeek)
		if err != nil {
			return Cadence{}, err
		}
		c.DaysOfWeek = days
	case "monthly":
		c.Kind = Custom
		c.Interval = 1
		c.Unit = Months
	case Custom:
		c.Kind = Custom
		switch {
		case p.Interval > 0:
			c.Interval = p.Interval
			c.Unit = p.Unit
			if c.Unit == "" {
				c.Unit = Days
			}
		case p.Interval < 0:
			return Cadence{}, fmt.Errorf("%w: interval must be positive", ErrInvalidCadence)
		case customDays > 0:
			c.Interval = customDays
			c.Unit = Days
		default:
			return Cadence{}, fmt.Errorf("%w: custom_frequency_days must be positive for a custom cadence", ErrInvalidCadence)
		}
		if c.Unit != Days && c.Unit != Weeks && c.Unit != Months {
			return Cadence{}, fmt.Errorf("%w: unknown unit %q", ErrInvalidCadence, c.Unit)
		}
		if c.Unit == Weeks {
			days, err := weekdays(p.DaysOfWeek)
			if err != nil {
				return Cadence{}, err
			}
			c.DaysOfWeek = days
		}
	default:
		return Cadence{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidCadence, frequency)
	}
	return c, nil
}

func weekdays(raw []int) ([]time.Weekday, error) {
	seen := make(map[int]bool, len(raw))
	out := make([]time.Weekday, 0, len(raw))
	for _, d := range raw {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("%w: day of week %d out of range 0-6", ErrInvalidCadence, d)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, time.Weekday(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Frequency returns the enum value persisted alongside the pattern.
func (c Cadence) Frequency() string {
	return string(c.Kind)
}

// Pattern returns the structured overlay to persist for this cadence.
func (c Cadence) Pattern() Pattern {
	p := Pattern{WeekdaysOnly: c.WeekdaysOnly}
	for _, d := range c.DaysOfWeek {
		p.DaysOfWeek = append(p.DaysOfWeek, int(d))
	}
	if c.Kind == Custom {
		p.Interval = c.Interval
		p.Unit = c.Unit
	}
	return p
}

// Weekdays is the effective weekday set of a weekly cadence: the explicit set,
// or the anchor's weekday when none was given.
func (c Cadence) Weekdays() []time.Weekday {
	if len(c.DaysOfWeek) > 0 {
		return c.DaysOfWeek
	}
	if c.Anchor.IsZero() {
		return nil
	}
	return []time.Weekday{c.Anchor.Weekday()}
}

// IntervalDays is the largest gap, in days, between two completions that
// still keeps a streak alive.
func (c Cadence) IntervalDays() int {
	switch c.Kind {
	case Daily:
		return 1
	case Weekly:
		return 7
	case Custom:
		n := c.Interval
		if n < 1 {
			n = 1
		}
		switch c.Unit {
		case Weeks:
			return 7 * n
		case Months:
			return 31 * n
		}
		return n
	}
	return 1
}

// Matches reports whether an instance belongs on day.
func (c Cadence) Matches(day time.Time) bool {
	day = DateOf(day)
	if c.Kind != Daily && c.Anchor.IsZero() {
		return false
	}
	if !c.Anchor.IsZero() && day.Before(c.Anchor) {
		return false
	}
	if c.WeekdaysOnly && isWeekend(day) {
		return false
	}

	switch c.Kind {
	case Daily:
		return true
	case Weekly:
		return hasWeekday(c.Weekdays(), day.Weekday())
	case Custom:
		if c.Interval < 1 {
			return false
		}
		switch c.Unit {
		case Weeks:
			if !hasWeekday(c.Weekdays(), day.Weekday()) {
				return false
			}
			weeks := DaysBetween(weekStart(c.Anchor), weekStart(day)) / 7
			return weeks%c.Interval == 0
		case Months:
			if day.Day() != c.Anchor.Day() {
				return false
			}
			return monthsBetween(c.Anchor, day)%c.Interval == 0
		default:
			return DaysBetween(c.Anchor, day)%c.Interval == 0
		}
	}
	return false
}

func isWeekend(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func hasWeekday(set []time.Weekday, wd time.Weekday) bool {
	for _, d := range set {
		if d == wd {
			return true
		}
	}
	return false
}

func weekStart(day time.Time) time.Time {
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
