package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gyst/internal/model"
)

// InstanceRepository handles materialized task instances.
type InstanceRepository struct {
	db *gorm.DB
}

func NewInstanceRepository(db *gorm.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// InsertPending bulk-inserts instances and returns how many rows were new.
// Rows that collide with an existing (task, due date) are silently dropped.
func (r *InstanceRepository) InsertPending(ctx context.Context, instances []model.TaskInstance) (int, error) {
	if len(instances) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&instances)
	if res.Error != nil {
		return 0, fmt.Errorf("insert instances: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// OccupiedDates returns every date an instance of the task occupies, was
// moved away from, or was deleted from, so expansion never refills a slot
// the user already dealt with.
func (r *InstanceRepository) OccupiedDates(ctx context.Context, taskID uint) ([]time.Time, error) {
	var rows []struct {
		DueDate         time.Time
		OriginalDueDate *time.Time
	}
	if err := r.db.WithContext(ctx).Unscoped().Model(&model.TaskInstance{}).
		Select("due_date, original_due_date").
		Where("task_id = ?", taskID).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list instance dates: %w", err)
	}
	dates := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		dates = append(dates, row.DueDate)
		if row.OriginalDueDate != nil {
			dates = append(dates, *row.OriginalDueDate)
		}
	}
	return dates, nil
}

func (r *InstanceRepository) FindByID(ctx context.Context, userID, id uint) (*model.TaskInstance, error) {
	var inst model.TaskInstance
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&inst).Error; err != nil {
		return nil, err
	}
	return &inst, nil
}

// ListRange returns a user's instances due in [from, to], excluding rows
// that were rescheduled away.
func (r *InstanceRepository) ListRange(ctx context.Context, userID uint, from, to time.Time) ([]model.TaskInstance, error) {
	var instances []model.TaskInstance
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND due_date >= ? AND due_date <= ? AND status <> ?", userID, from, to, model.StatusRescheduled).
		Order("due_date ASC, scheduled_time ASC, id ASC").
		Find(&instances).Error; err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return instances, nil
}

// ListByTask returns all instances of a task in due-date order.
func (r *InstanceRepository) ListByTask(ctx context.Context, taskID uint) ([]model.TaskInstance, error) {
	var instances []model.TaskInstance
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).
		Order("due_date ASC, id ASC").
		Find(&instances).Error; err != nil {
		return nil, fmt.Errorf("list task instances: %w", err)
	}
	return instances, nil
}

// CountOverdue counts pending instances due before day.
func (r *InstanceRepository) CountOverdue(ctx context.Context, userID uint, day time.Time) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.TaskInstance{}).
		Where("user_id = ? AND status = ? AND due_date < ?", userID, model.StatusPending, day).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count overdue: %w", err)
	}
	return n, nil
}

func (r *InstanceRepository) Save(ctx context.Context, inst *model.TaskInstance) error {
	if err := r.db.WithContext(ctx).Save(inst).Error; err != nil {
		return fmt.Errorf("save instance: %w", err)
	}
	return nil
}

// CoveredDates returns the due dates of skipped instances that spent a
// break credit.
func (r *InstanceRepository) CoveredDates(ctx context.Context, taskID uint) ([]time.Time, error) {
	var dates []time.Time
	if err := r.db.WithContext(ctx).Model(&model.TaskInstance{}).
		Where("task_id = ? AND status = ? AND break_used = ?", taskID, model.StatusSkipped, true).
		Pluck("due_date", &dates).Error; err != nil {
		return nil, fmt.Errorf("list covered dates: %w", err)
	}
	return dates, nil
}

// Transition saves inst only while its stored status is still one of from,
// and reports whether the row was written. A false result means another
// request moved the instance first.
func (r *InstanceRepository) Transition(ctx context.Context, inst *model.TaskInstance, from ...model.InstanceStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(inst).
		Where("status IN ?", from).
		Select("*").Omit("id", "created_at").
		Updates(inst)
	if res.Error != nil {
		return false, fmt.Errorf("update instance: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Delete soft-deletes an instance; the row stays behind as a tombstone for
// OccupiedDates.
func (r *InstanceRepository) Delete(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).Delete(&model.TaskInstance{})
	if res.Error != nil {
		return fmt.Errorf("delete instance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
