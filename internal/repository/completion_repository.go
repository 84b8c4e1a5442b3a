package repository

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"gyst/internal/model"
)

// CompletionRepository appends and reads completion history.
type CompletionRepository struct {
	db *gorm.DB
}

func NewCompletionRepository(db *gorm.DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

func (r *CompletionRepository) Create(ctx context.Context, c *model.TaskCompletion) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create completion: %w", err)
	}
	return nil
}

// ListByTask returns a task's completions, oldest first.
func (r *CompletionRepository) ListByTask(ctx context.Context, taskID uint) ([]model.TaskCompletion, error) {
	var completions []model.TaskCompletion
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).
		Order("completed_at ASC, id ASC").
		Find(&completions).Error; err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	return completions, nil
}

// AverageMinutes is the plain mean of all non-null actual_minutes of a task,
// or nil when none were recorded.
func (r *CompletionRepository) AverageMinutes(ctx context.Context, taskID uint) (*float64, error) {
	var avg sql.NullFloat64
	if err := r.db.WithContext(ctx).Model(&model.TaskCompletion{}).
		Select("AVG(actual_minutes)").
		Where("task_id = ? AND actual_minutes IS NOT NULL", taskID).
		Scan(&avg).Error; err != nil {
		return nil, fmt.Errorf("average minutes: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}
