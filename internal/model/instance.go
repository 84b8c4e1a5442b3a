package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InstanceStatus is the lifecycle state of a TaskInstance.
type InstanceStatus string

const (
	StatusPending     InstanceStatus = "pending"
	StatusCompleted   InstanceStatus = "completed"
	StatusSkipped     InstanceStatus = "skipped"
	StatusRescheduled InstanceStatus = "rescheduled"
)

// Mood is how the user felt after completing an instance.
type Mood string

const (
	MoodHappy   Mood = "happy"
	MoodNeutral Mood = "neutral"
	MoodSad     Mood = "sad"
)

// Valid reports whether m is empty or one of the known moods.
func (m Mood) Valid() bool {
	switch m {
	case "", MoodHappy, MoodNeutral, MoodSad:
		return true
	}
	return false
}

// TaskInstance is one dated occurrence of a task. At most one live
// non-rescheduled instance exists per (task, due date); see
// repository.NewDB for the partial unique index. Deleted instances are
// soft-deleted so their date stays occupied.
type TaskInstance struct {
	ID                uint                                `gorm:"primaryKey" json:"id"`
	TaskID            uint                                `gorm:"index" json:"task_id"`
	UserID            uint                                `gorm:"index" json:"user_id"`
	DueDate           time.Time                           `gorm:"index" json:"due_date"`
	ScheduledTime     string                              `json:"scheduled_time"`
	Status            InstanceStatus                      `gorm:"index" json:"status"`
	CompletedAt       *time.Time                          `json:"completed_at,omitempty"`
	Mood              Mood                                `json:"mood"`
	ActualMinutes     *int                                `json:"actual_minutes,omitempty"`
	PhotoURL          string                              `json:"photo_url"`
	Notes             string                              `json:"notes"`
	SubtasksCompleted datatypes.JSONType[map[string]bool] `json:"subtasks_completed"`
	OriginalDueDate   *time.Time                          `json:"original_due_date,omitempty"`
	RescheduleReason  string                              `json:"reschedule_reason"`
	SkipReason        string                              `json:"skip_reason"`
	BreakUsed         bool                                `json:"break_used"`
	CreatedAt         time.Time                           `json:"created_at"`
	UpdatedAt         time.Time                           `json:"updated_at"`
	DeletedAt         gorm.DeletedAt                      `gorm:"index" json:"-"`
}
