package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gyst/internal/model"
)

// StreakRepository persists the one-per-task streak row.
type StreakRepository struct {
	db *gorm.DB
}

func NewStreakRepository(db *gorm.DB) *StreakRepository {
	return &StreakRepository{db: db}
}

func (r *StreakRepository) FindByTask(ctx context.Context, taskID uint) (*model.Streak, error) {
	var s model.Streak
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert writes s keyed on task_id. A row loaded earlier is saved in place;
// a fresh row merges into any row another request created meanwhile.
func (r *StreakRepository) Upsert(ctx context.Context, s *model.Streak) error {
	db := r.db.WithContext(ctx)
	if s.ID != 0 {
		if err := db.Save(s).Error; err != nil {
			return fmt.Errorf("save streak: %w", err)
		}
		return nil
	}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_streak", "longest_streak", "total_completions", "completion_rate",
			"earned_breaks", "available_breaks", "used_breaks", "next_milestone",
			"last_calculated_at", "updated_at",
		}),
	}).Create(s).Error
	if err != nil {
		return fmt.Errorf("upsert streak: %w", err)
	}
	return nil
}
