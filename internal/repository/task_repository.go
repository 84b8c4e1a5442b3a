package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"gyst/internal/model"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

func (r *TaskRepository) ListByUser(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListActive returns the tasks that still generate instances.
func (r *TaskRepository) ListActive(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND is_active = ?", userID, true).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) ListByIDs(ctx context.Context, userID uint, ids []uint) ([]model.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, ids).Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) SetActive(ctx context.Context, task *model.Task, active bool) error {
	task.IsActive = active
	if err := r.db.WithContext(ctx).Model(task).Update("is_active", active).Error; err != nil {
		return fmt.Errorf("set task active: %w", err)
	}
	return nil
}

// RecordCompletion bumps the denormalised completion aggregates.
func (r *TaskRepository) RecordCompletion(ctx context.Context, task *model.Task, completedAt time.Time, minutesAvg *float64) error {
	updates := map[string]interface{}{
		"completion_count":   gorm.Expr("completion_count + 1"),
		"last_completed_at":  completedAt,
		"actual_minutes_avg": minutesAvg,
	}
	if err := r.db.WithContext(ctx).Model(task).Updates(updates).Error; err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	task.CompletionCount++
	task.LastCompletedAt = &completedAt
	task.ActualMinutesAvg = minutesAvg
	return nil
}

// Delete removes a task together with its instances, completions and streak.
func (r *TaskRepository) Delete(ctx context.Context, userID, taskID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND id = ?", userID, taskID).Delete(&model.Task{})
		if res.Error != nil {
			return fmt.Errorf("delete task: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		for _, m := range []interface{}{&model.TaskInstance{}, &model.TaskCompletion{}, &model.Streak{}} {
			if err := tx.Unscoped().Where("task_id = ?", taskID).Delete(m).Error; err != nil {
				return fmt.Errorf("delete task children: %w", err)
			}
		}
		return nil
	})
}
