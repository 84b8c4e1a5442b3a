package model

import "time"

// Category groups tasks by area (work, health, study, etc.).
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index:idx_user_category_name,unique" json:"user_id"`
	Name      string    `gorm:"index:idx_user_category_name,unique" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Tasks     []Task    `gorm:"foreignKey:CategoryID" json:"tasks,omitempty"`
}
