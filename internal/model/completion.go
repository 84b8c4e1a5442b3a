package model

import (
	"time"

	"gorm.io/datatypes"
)

// TaskCompletion is an append-only record of one completion event.
type TaskCompletion struct {
	ID                uint                                `gorm:"primaryKey" json:"id"`
	TaskID            uint                                `gorm:"index" json:"task_id"`
	UserID            uint                                `gorm:"index" json:"user_id"`
	InstanceID        *uint                               `gorm:"index" json:"instance_id,omitempty"`
	CompletedAt       time.Time                           `json:"completed_at"`
	ActualMinutes     *int                                `json:"actual_minutes,omitempty"`
	Mood              Mood                                `json:"mood"`
	PhotoURL          string                              `json:"photo_url"`
	Notes             string                              `json:"notes"`
	SubtasksCompleted datatypes.JSONType[map[string]bool] `json:"subtasks_completed"`
	CreatedAt         time.Time                           `json:"created_at"`
}
