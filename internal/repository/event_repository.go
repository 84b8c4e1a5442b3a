package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gyst/internal/model"
)

// EventRepository stores the mirrored external calendar feed.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// EventsBetween returns a user's external events overlapping [from, to).
func (r *EventRepository) EventsBetween(ctx context.Context, userID uint, from, to time.Time) ([]model.ExternalEvent, error) {
	var events []model.ExternalEvent
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND starts_at < ? AND ends_at >= ?", userID, to, from).
		Order("starts_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Upsert inserts or refreshes events keyed on (user, provider, external id).
func (r *EventRepository) Upsert(ctx context.Context, events []model.ExternalEvent) error {
	if len(events) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "starts_at", "ends_at", "all_day", "blocks_scheduling", "updated_at",
		}),
	}).Create(&events).Error
	if err != nil {
		return fmt.Errorf("upsert events: %w", err)
	}
	return nil
}
