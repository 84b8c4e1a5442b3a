package service

import (
	"time"

	"gyst/internal/recurrence"
)

// Clock supplies the current time in the planner's time zone.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// SystemClock reads the wall clock in loc.
func SystemClock(loc *time.Location) Clock {
	return Clock{Now: time.Now, Location: loc}
}

func (c Clock) now() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if c.Location == nil {
		return now()
	}
	return now().In(c.Location)
}

// Today is the current calendar day in the clock's zone.
func (c Clock) Today() time.Time {
	return recurrence.DateOf(c.now())
}

// local converts a stored timestamp into the clock's zone.
func (c Clock) local(t time.Time) time.Time {
	if c.Location == nil {
		return t
	}
	return t.In(c.Location)
}
