package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"gyst/internal/logger"
	"gyst/internal/model"
	"gyst/internal/recurrence"
	"gyst/internal/repository"
	"gyst/internal/streak"
)

// TimeLayout is the wall-clock format of preferred and scheduled times.
const TimeLayout = "15:04"

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title                 string
	Description           string
	Category              string
	Frequency             string
	CustomFrequencyDays   int
	Pattern               *recurrence.Pattern
	StartDate             *time.Time
	PreferredTime         string
	EstimatedMinutes      *int
	ReminderMinutesBefore *int
	Subtasks              []string
}

// TaskUpdate carries the editable fields of a task; nil leaves a field as is.
type TaskUpdate struct {
	Title         *string
	Description   *string
	Category      *string
	PreferredTime *string
}

// TaskService wraps task-related business logic.
type TaskService struct {
	repos     *repository.Repositories
	instances *InstanceService
	clock     Clock
}

func NewTaskService(repos *repository.Repositories, instances *InstanceService, clock Clock) *TaskService {
	return &TaskService{repos: repos, instances: instances, clock: clock}
}

func (s *TaskService) CreateTask(ctx context.Context, userID uint, input TaskInput) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationf("title is required")
	}
	if input.EstimatedMinutes != nil && *input.EstimatedMinutes <= 0 {
		return nil, validationf("estimated minutes must be positive")
	}
	if input.ReminderMinutesBefore != nil && *input.ReminderMinutesBefore <= 0 {
		return nil, validationf("reminder minutes must be positive")
	}
	preferred, err := parseClock(input.PreferredTime)
	if err != nil {
		return nil, err
	}

	start := s.clock.Today()
	if input.StartDate != nil {
		start = recurrence.DateOf(*input.StartDate)
	}
	cadence, err := recurrence.FromLegacy(input.Frequency, input.CustomFrequencyDays, input.Pattern, start)
	if err != nil {
		return nil, validationf("%v", err)
	}

	var categoryID *uint
	if name := strings.TrimSpace(input.Category); name != "" {
		category, err := s.repos.Categories.GetOrCreate(ctx, userID, name)
		if err != nil {
			return nil, err
		}
		if category != nil {
			categoryID = &category.ID
		}
	}

	task := model.Task{
		UserID:            userID,
		CategoryID:        categoryID,
		Title:             title,
		Description:       strings.TrimSpace(input.Description),
		Frequency:         cadence.Frequency(),
		RecurrencePattern: datatypes.NewJSONType(cadence.Pattern()),
		Subtasks:          datatypes.NewJSONType(newSubtasks(input.Subtasks)),
		StartDate:         start,
		PreferredTime:     preferred,
		IsActive:          true,
	}
	if cadence.Kind == recurrence.Custom && cadence.Unit == recurrence.Days {
		task.CustomFrequencyDays = cadence.Interval
	}
	if input.EstimatedMinutes != nil {
		task.EstimatedMinutes = *input.EstimatedMinutes
	}
	if input.ReminderMinutesBefore != nil {
		task.ReminderMinutesBefore = *input.ReminderMinutesBefore
	}

	if err := s.repos.Tasks.Create(ctx, &task); err != nil {
		return nil, err
	}

	if _, err := s.instances.MaterializeTask(ctx, &task); err != nil {
		logger.Service.Warn("materialize new task", "task", task.ID, "error", err)
	}
	return &task, nil
}

func newSubtasks(labels []string) []model.Subtask {
	var out []model.Subtask
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		out = append(out, model.Subtask{ID: uuid.NewString(), Title: label})
	}
	return out
}

func parseClock(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	t, err := time.Parse(TimeLayout, raw)
	if err != nil {
		return "", validationf("time %q must be HH:MM", raw)
	}
	return t.Format(TimeLayout), nil
}

func (s *TaskService) UpdateTask(ctx context.Context, userID, taskID uint, upd TaskUpdate) (*model.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return nil, validationf("title is required")
		}
		task.Title = title
	}
	if upd.Description != nil {
		task.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.PreferredTime != nil {
		preferred, err := parseClock(*upd.PreferredTime)
		if err != nil {
			return nil, err
		}
		task.PreferredTime = preferred
	}
	if upd.Category != nil {
		task.CategoryID = nil
		if name := strings.TrimSpace(*upd.Category); name != "" {
			category, err := s.repos.Categories.GetOrCreate(ctx, userID, name)
			if err != nil {
				return nil, err
			}
			task.CategoryID = &category.ID
		}
	}
	if err := s.repos.Tasks.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) ListTasks(ctx context.Context, userID uint) ([]model.Task, error) {
	return s.repos.Tasks.ListByUser(ctx, userID)
}

func (s *TaskService) GetTask(ctx context.Context, userID, taskID uint) (*model.Task, error) {
	task, err := s.repos.Tasks.FindByID(ctx, userID, taskID)
	if err != nil {
		return nil, notFound("task", err)
	}
	return task, nil
}

// PauseTask stops a task from generating instances. Existing instances stay.
func (s *TaskService) PauseTask(ctx context.Context, userID, taskID uint) (*model.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Tasks.SetActive(ctx, task, false); err != nil {
		return nil, err
	}
	return task, nil
}

// ResumeTask reactivates a paused task and fills its window straight away.
func (s *TaskService) ResumeTask(ctx context.Context, userID, taskID uint) (*model.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Tasks.SetActive(ctx, task, true); err != nil {
		return nil, err
	}
	if _, err := s.instances.MaterializeTask(ctx, task); err != nil {
		logger.Service.Warn("materialize resumed task", "task", task.ID, "error", err)
	}
	return task, nil
}

// DeleteTask removes a task with its instances, history and streak.
func (s *TaskService) DeleteTask(ctx context.Context, userID, taskID uint) error {
	if err := s.repos.Tasks.Delete(ctx, userID, taskID); err != nil {
		return notFound("task", err)
	}
	return nil
}

// Streak returns the task's persisted streak row, or an empty one when the
// task has never been completed.
func (s *TaskService) Streak(ctx context.Context, userID, taskID uint) (*model.Streak, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	row, err := s.repos.Streaks.FindByTask(ctx, task.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.Streak{TaskID: task.ID, UserID: userID, NextMilestone: streak.NextMilestone(0)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load streak: %w", err)
	}
	return row, nil
}
