package model

import "time"

// ExternalEvent is a read-only item mirrored from an external calendar.
type ExternalEvent struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"index:idx_external_event,unique" json:"user_id"`
	Provider         string    `gorm:"index:idx_external_event,unique" json:"provider"`
	ExternalID       string    `gorm:"index:idx_external_event,unique" json:"external_id"`
	Title            string    `json:"title"`
	StartsAt         time.Time `gorm:"index" json:"starts_at"`
	EndsAt           time.Time `json:"ends_at"`
	AllDay           bool      `json:"all_day"`
	BlocksScheduling bool      `json:"blocks_scheduling"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
