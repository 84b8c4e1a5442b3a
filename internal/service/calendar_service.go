package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"gyst/internal/logger"
	"gyst/internal/model"
	"gyst/internal/recurrence"
	"gyst/internal/repository"
)

// MaxCalendarDays bounds a single calendar request.
const MaxCalendarDays = 92

// Calendar item kinds.
const (
	ItemTask  = "task"
	ItemEvent = "event"
)

// EventSource is the read-only external calendar feed.
type EventSource interface {
	EventsBetween(ctx context.Context, userID uint, from, to time.Time) ([]model.ExternalEvent, error)
}

// CalendarItem is one entry of the merged calendar view.
type CalendarItem struct {
	Kind  string    `json:"kind"`
	Date  time.Time `json:"date"`
	Time  string    `json:"time,omitempty"`
	Title string    `json:"title"`

	TaskID     uint                 `json:"task_id,omitempty"`
	InstanceID uint                 `json:"instance_id,omitempty"`
	Status     model.InstanceStatus `json:"status,omitempty"`
	Paused     bool                 `json:"paused,omitempty"`
	Conflict   bool                 `json:"conflict,omitempty"`

	Provider         string     `json:"provider,omitempty"`
	AllDay           bool       `json:"all_day,omitempty"`
	BlocksScheduling bool       `json:"blocks_scheduling,omitempty"`
	Start            *time.Time `json:"start,omitempty"`
	End              *time.Time `json:"end,omitempty"`
}

// ImportedEvent is one external event handed in by a sync job.
type ImportedEvent struct {
	ExternalID       string
	Title            string
	Start            time.Time
	End              time.Time
	AllDay           bool
	BlocksScheduling bool
}

// CalendarService merges task instances with external events.
type CalendarService struct {
	repos     *repository.Repositories
	instances *InstanceService
	events    EventSource
	clock     Clock
}

func NewCalendarService(repos *repository.Repositories, instances *InstanceService, events EventSource, clock Clock) *CalendarService {
	return &CalendarService{repos: repos, instances: instances, events: events, clock: clock}
}

// View returns every instance and event of the user between from and to
// inclusive, ordered by date and time. Instances of paused tasks are kept
// and flagged. The window is materialized first so the view is never empty
// for lack of a prior materialize call.
func (s *CalendarService) View(ctx context.Context, userID uint, from, to time.Time) ([]CalendarItem, error) {
	from, to = recurrence.DateOf(from), recurrence.DateOf(to)
	if from.IsZero() || to.IsZero() {
		return nil, validationf("from and to are required")
	}
	if to.Before(from) {
		return nil, validationf("to must not be before from")
	}
	if recurrence.DaysBetween(from, to)+1 > MaxCalendarDays {
		return nil, validationf("range exceeds %d days", MaxCalendarDays)
	}

	if s.instances != nil {
		if _, err := s.instances.Materialize(ctx, userID, 0); err != nil {
			logger.Service.Warn("materialize before calendar", "user", userID, "error", err)
		}
	}

	instances, err := s.repos.Instances.ListRange(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasksOf(ctx, userID, instances)
	if err != nil {
		return nil, err
	}

	var events []model.ExternalEvent
	if s.events != nil {
		events, err = s.events.EventsBetween(ctx, userID, s.startOfDay(from).UTC(), s.startOfDay(to.AddDate(0, 0, 1)).UTC())
		if err != nil {
			logger.Service.Warn("load external events", "user", userID, "error", err)
			events = nil
		}
	}

	items := make([]CalendarItem, 0, len(instances)+len(events))
	for _, inst := range instances {
		task, ok := tasks[inst.TaskID]
		if !ok {
			continue
		}
		item := CalendarItem{
			Kind:       ItemTask,
			Date:       recurrence.DateOf(inst.DueDate),
			Time:       inst.ScheduledTime,
			Title:      task.Title,
			TaskID:     task.ID,
			InstanceID: inst.ID,
			Status:     inst.Status,
			Paused:     !task.IsActive,
		}
		item.Conflict = s.conflicts(item, events)
		items = append(items, item)
	}
	for _, ev := range events {
		start, end := s.clock.local(ev.StartsAt), s.clock.local(ev.EndsAt)
		item := CalendarItem{
			Kind:             ItemEvent,
			Date:             recurrence.DateOf(start),
			Title:            ev.Title,
			Provider:         ev.Provider,
			AllDay:           ev.AllDay,
			BlocksScheduling: ev.BlocksScheduling,
			Start:            &start,
			End:              &end,
		}
		if !ev.AllDay {
			item.Time = start.Format(TimeLayout)
		}
		if item.Date.Before(from) {
			item.Date = from
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Time != b.Time {
			// Untimed items go last within a day.
			if a.Time == "" || b.Time == "" {
				return b.Time == ""
			}
			return a.Time < b.Time
		}
		return a.Kind > b.Kind
	})
	return items, nil
}

func (s *CalendarService) tasksOf(ctx context.Context, userID uint, instances []model.TaskInstance) (map[uint]model.Task, error) {
	seen := make(map[uint]struct{})
	var ids []uint
	for _, inst := range instances {
		if _, ok := seen[inst.TaskID]; ok {
			continue
		}
		seen[inst.TaskID] = struct{}{}
		ids = append(ids, inst.TaskID)
	}
	tasks, err := s.repos.Tasks.ListByIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uint]model.Task, len(tasks))
	for _, t := range tasks {
		out[t.ID] = t
	}
	return out, nil
}

// conflicts reports whether a timed pending instance falls inside a blocking
// event.
func (s *CalendarService) conflicts(item CalendarItem, events []model.ExternalEvent) bool {
	if item.Time == "" || item.Status != model.StatusPending {
		return false
	}
	clock, err := time.Parse(TimeLayout, item.Time)
	if err != nil {
		return false
	}
	at := time.Date(item.Date.Year(), item.Date.Month(), item.Date.Day(), clock.Hour(), clock.Minute(), 0, 0, s.location())
	for _, ev := range events {
		if !ev.BlocksScheduling {
			continue
		}
		if !at.Before(ev.StartsAt) && at.Before(ev.EndsAt) {
			return true
		}
	}
	return false
}

func (s *CalendarService) location() *time.Location {
	if s.clock.Location == nil {
		return time.Local
	}
	return s.clock.Location
}

// startOfDay turns a calendar date into the instant it begins in the
// planner's zone.
func (s *CalendarService) startOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.location())
}

// ImportEvents stores or refreshes external events for the user. The feed is
// never written back.
func (s *CalendarService) ImportEvents(ctx context.Context, userID uint, provider string, events []ImportedEvent) (int, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return 0, validationf("provider is required")
	}
	rows := make([]model.ExternalEvent, 0, len(events))
	for _, ev := range events {
		if strings.TrimSpace(ev.ExternalID) == "" {
			return 0, validationf("event id is required")
		}
		if ev.Start.IsZero() || ev.End.Before(ev.Start) {
			return 0, validationf("event %q has an invalid time range", ev.ExternalID)
		}
		rows = append(rows, model.ExternalEvent{
			UserID:           userID,
			Provider:         provider,
			ExternalID:       ev.ExternalID,
			Title:            strings.TrimSpace(ev.Title),
			StartsAt:         ev.Start.UTC(),
			EndsAt:           ev.End.UTC(),
			AllDay:           ev.AllDay,
			BlocksScheduling: ev.BlocksScheduling,
		})
	}
	if err := s.repos.Events.Upsert(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
