package model

import "time"

// User is a planner account. TelegramChatID routes push notifications.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Email          string    `gorm:"uniqueIndex" json:"email"`
	DisplayName    string    `json:"display_name"`
	TelegramChatID int64     `gorm:"index" json:"telegram_chat_id"`
	AvatarURL      string    `json:"avatar_url"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
