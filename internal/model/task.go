package model

import (
	"time"

	"gorm.io/datatypes"

	"gyst/internal/recurrence"
)

// Subtask is a checklist item carried by every instance of a task.
type Subtask struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Task is a recurring template from which dated instances are materialized.
type Task struct {
	ID                    uint                                   `gorm:"primaryKey" json:"id"`
	UserID                uint                                   `gorm:"index" json:"user_id"`
	CategoryID            *uint                                  `gorm:"index" json:"category_id,omitempty"`
	Title                 string                                 `json:"title"`
	Description           string                                 `json:"description"`
	Frequency             string                                 `json:"frequency"` // daily, weekly or custom
	CustomFrequencyDays   int                                    `json:"custom_frequency_days"`
	RecurrencePattern     datatypes.JSONType[recurrence.Pattern] `json:"recurrence_pattern"`
	Subtasks              datatypes.JSONType[[]Subtask]          `json:"subtasks"`
	StartDate             time.Time                              `json:"start_date"`
	PreferredTime         string                                 `json:"preferred_time"` // HH:MM, empty when unset
	EstimatedMinutes      int                                    `json:"estimated_minutes"`
	ReminderMinutesBefore int                                    `json:"reminder_minutes_before"`
	IsActive              bool                                   `json:"is_active"`
	CompletionCount       int                                    `json:"completion_count"`
	LastCompletedAt       *time.Time                             `json:"last_completed_at,omitempty"`
	ActualMinutesAvg      *float64                               `json:"actual_minutes_avg,omitempty"`
	CreatedAt             time.Time                              `json:"created_at"`
	UpdatedAt             time.Time                              `json:"updated_at"`
}

// Cadence resolves the task's recurrence into its normalised form, anchored
// on the start date or, failing that, the creation date.
func (t *Task) Cadence() (recurrence.Cadence, error) {
	anchor := t.StartDate
	if anchor.IsZero() {
		anchor = t.CreatedAt
	}
	pattern := t.RecurrencePattern.Data()
	return recurrence.FromLegacy(t.Frequency, t.CustomFrequencyDays, &pattern, anchor)
}

// HasSubtask reports whether id names one of the task's subtasks.
func (t *Task) HasSubtask(id string) bool {
	for _, s := range t.Subtasks.Data() {
		if s.ID == id {
			return true
		}
	}
	return false
}
