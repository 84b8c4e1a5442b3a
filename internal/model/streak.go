package model

import "time"

// Streak holds the derived streak and break-credit numbers of one task.
type Streak struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	TaskID           uint       `gorm:"uniqueIndex" json:"task_id"`
	UserID           uint       `gorm:"index" json:"user_id"`
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	TotalCompletions int        `json:"total_completions"`
	CompletionRate   int        `json:"completion_rate"`
	EarnedBreaks     int        `json:"earned_breaks"`
	AvailableBreaks  int        `json:"available_breaks"`
	UsedBreaks       int        `json:"used_breaks"`
	NextMilestone    int        `json:"next_milestone"`
	LastCalculatedAt *time.Time `json:"last_calculated_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
