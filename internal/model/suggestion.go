package model

import "time"

// SuggestionStatus tracks what the user did with a suggestion.
type SuggestionStatus string

const (
	SuggestionOpen      SuggestionStatus = "open"
	SuggestionAccepted  SuggestionStatus = "accepted"
	SuggestionDismissed SuggestionStatus = "dismissed"
)

// Suggestion is a cached task proposal from the generator or the local
// fallback list.
type Suggestion struct {
	ID                  uint             `gorm:"primaryKey" json:"id"`
	UserID              uint             `gorm:"index" json:"user_id"`
	BatchID             string           `gorm:"index" json:"batch_id"`
	Title               string           `json:"title"`
	Description         string           `json:"description"`
	Category            string           `json:"category"`
	Frequency           string           `json:"frequency"`
	CustomFrequencyDays int              `json:"custom_frequency_days"`
	EstimatedMinutes    int              `json:"estimated_minutes"`
	Message             string           `json:"message"`
	Source              string           `json:"source"` // generator or fallback
	Status              SuggestionStatus `json:"status"`
	TaskID              *uint            `json:"task_id,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}
