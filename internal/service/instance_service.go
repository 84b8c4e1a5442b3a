package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"gyst/internal/config"
	"gyst/internal/logger"
	"gyst/internal/model"
	"gyst/internal/notify"
	"gyst/internal/recurrence"
	"gyst/internal/repository"
	"gyst/internal/storage"
	"gyst/internal/streak"
)

// CompletionInput is what the user reports when completing an instance.
type CompletionInput struct {
	Mood             model.Mood
	ActualMinutes    *int
	Notes            string
	Photo            []byte
	PhotoContentType string
	Subtasks         map[string]bool
}

// CompletionResult is the outcome of a completion, including any milestone
// reached and the break credits it earned.
type CompletionResult struct {
	Instance     *model.TaskInstance `json:"instance"`
	Streak       *model.Streak       `json:"streak"`
	Milestone    int                 `json:"milestone,omitempty"`
	BreaksEarned int                 `json:"breaks_earned"`
}

// InstanceService materializes task instances and drives their lifecycle.
type InstanceService struct {
	repos      *repository.Repositories
	objects    storage.ObjectStore
	dispatcher *notify.Dispatcher
	clock      Clock
	windowDays int
}

func NewInstanceService(repos *repository.Repositories, objects storage.ObjectStore, dispatcher *notify.Dispatcher, clock Clock, windowDays int) *InstanceService {
	return &InstanceService{
		repos:      repos,
		objects:    objects,
		dispatcher: dispatcher,
		clock:      clock,
		windowDays: config.ClampWindow(windowDays),
	}
}

// Materialize creates the missing pending instances of every active task of
// the user for the next windowDays days (0 selects the configured default)
// and returns how many were created. Calling it again, or concurrently, is
// harmless.
func (s *InstanceService) Materialize(ctx context.Context, userID uint, windowDays int) (int, error) {
	if windowDays == 0 {
		windowDays = s.windowDays
	}
	from, to := s.window(windowDays)

	tasks, err := s.repos.Tasks.ListActive(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list active tasks: %w", err)
	}
	total := 0
	for i := range tasks {
		n, err := s.materialize(ctx, s.repos, &tasks[i], from, to)
		if errors.Is(err, recurrence.ErrInvalidCadence) {
			logger.Service.Warn("skip task with invalid cadence", "task", tasks[i].ID, "error", err)
			continue
		}
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// MaterializeTask fills the default window for a single active task.
func (s *InstanceService) MaterializeTask(ctx context.Context, task *model.Task) (int, error) {
	if !task.IsActive {
		return 0, nil
	}
	from, to := s.window(s.windowDays)
	return s.materialize(ctx, s.repos, task, from, to)
}

func (s *InstanceService) window(days int) (time.Time, time.Time) {
	days = config.ClampWindow(days)
	from := s.clock.Today()
	return from, from.AddDate(0, 0, days-1)
}

func (s *InstanceService) materialize(ctx context.Context, repos *repository.Repositories, task *model.Task, from, to time.Time) (int, error) {
	cadence, err := task.Cadence()
	if err != nil {
		return 0, fmt.Errorf("task %d: %w", task.ID, err)
	}
	occupied, err := repos.Instances.OccupiedDates(ctx, task.ID)
	if err != nil {
		return 0, err
	}

	dates := recurrence.Expand(cadence, from, to, recurrence.NewDateSet(occupied...))
	if len(dates) == 0 {
		return 0, nil
	}
	instances := make([]model.TaskInstance, 0, len(dates))
	for _, d := range dates {
		instances = append(instances, newPending(task.ID, task.UserID, d, task.PreferredTime))
	}
	n, err := repos.Instances.InsertPending(ctx, instances)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Service.Debug("materialized instances", "task", task.ID, "count", n)
	}
	return n, nil
}

func newPending(taskID, userID uint, due time.Time, scheduled string) model.TaskInstance {
	return model.TaskInstance{
		TaskID:            taskID,
		UserID:            userID,
		DueDate:           recurrence.DateOf(due),
		ScheduledTime:     scheduled,
		Status:            model.StatusPending,
		SubtasksCompleted: datatypes.NewJSONType(map[string]bool{}),
	}
}

func (s *InstanceService) Get(ctx context.Context, userID, id uint) (*model.TaskInstance, error) {
	inst, err := s.repos.Instances.FindByID(ctx, userID, id)
	if err != nil {
		return nil, notFound("instance", err)
	}
	return inst, nil
}

func transitionError(action string, from model.InstanceStatus) error {
	return fmt.Errorf("%w: cannot %s a %s instance", ErrInvalidTransition, action, from)
}

// transition writes inst only if its stored status is still one of from.
func transition(ctx context.Context, tx *repository.Repositories, inst *model.TaskInstance, from ...model.InstanceStatus) error {
	ok, err := tx.Instances.Transition(ctx, inst, from...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: instance %d was changed by another request", ErrInvalidTransition, inst.ID)
	}
	return nil
}

// Complete marks a pending instance completed, appends the completion to the
// task history and recomputes the task's aggregates, streak and break
// credits. A photo is uploaded first; if that fails nothing is written. The
// database side effects commit together or not at all.
func (s *InstanceService) Complete(ctx context.Context, userID, id uint, in CompletionInput) (*CompletionResult, error) {
	inst, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if inst.Status != model.StatusPending {
		return nil, transitionError("complete", inst.Status)
	}
	if !in.Mood.Valid() {
		return nil, validationf("unknown mood %q", in.Mood)
	}
	if in.ActualMinutes != nil && *in.ActualMinutes <= 0 {
		return nil, validationf("actual minutes must be positive")
	}
	task, err := s.repos.Tasks.FindByID(ctx, userID, inst.TaskID)
	if err != nil {
		return nil, notFound("task", err)
	}
	for subtaskID := range in.Subtasks {
		if !task.HasSubtask(subtaskID) {
			return nil, validationf("unknown subtask %q", subtaskID)
		}
	}
	cadence, err := task.Cadence()
	if err != nil {
		return nil, validationf("%v", err)
	}

	var photoURL string
	if len(in.Photo) > 0 {
		if s.objects == nil {
			return nil, fmt.Errorf("upload photo: no object store configured")
		}
		photoURL, err = s.objects.Put(ctx, storage.PhotoKey(userID, task.ID, in.PhotoContentType), in.Photo, in.PhotoContentType)
		if err != nil {
			return nil, fmt.Errorf("upload photo: %w", err)
		}
	}

	now := s.clock.now()
	result := &CompletionResult{Instance: inst}
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		subtasks := copySubtasks(inst.SubtasksCompleted.Data())
		for k, v := range in.Subtasks {
			subtasks[k] = v
		}

		inst.Status = model.StatusCompleted
		inst.CompletedAt = &now
		inst.Mood = in.Mood
		inst.ActualMinutes = in.ActualMinutes
		inst.PhotoURL = photoURL
		inst.Notes = strings.TrimSpace(in.Notes)
		inst.SubtasksCompleted = datatypes.NewJSONType(subtasks)
		if err := transition(ctx, tx, inst, model.StatusPending); err != nil {
			return err
		}

		completion := model.TaskCompletion{
			TaskID:            task.ID,
			UserID:            userID,
			InstanceID:        &inst.ID,
			CompletedAt:       now,
			ActualMinutes:     inst.ActualMinutes,
			Mood:              inst.Mood,
			PhotoURL:          inst.PhotoURL,
			Notes:             inst.Notes,
			SubtasksCompleted: datatypes.NewJSONType(subtasks),
		}
		if err := tx.Completions.Create(ctx, &completion); err != nil {
			return err
		}

		avg, err := tx.Completions.AverageMinutes(ctx, task.ID)
		if err != nil {
			return err
		}
		if err := tx.Tasks.RecordCompletion(ctx, task, now, avg); err != nil {
			return err
		}

		row, milestone, delta, err := s.recalculate(ctx, tx, task, cadence, now)
		if err != nil {
			return err
		}
		result.Streak = row
		if milestone > 0 {
			result.Milestone = milestone
			result.BreaksEarned = delta
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete instance %d: %w", id, err)
	}

	if result.Milestone > 0 {
		s.notifyMilestone(ctx, userID, task, result)
	}
	return result, nil
}

// recalculate recomputes the streak row of task from its full completion
// history as visible inside tx. Days skipped with a break credit bridge the
// streak. It returns the milestone newly reached (0 if
// none) and the break credits added.
func (s *InstanceService) recalculate(ctx context.Context, tx *repository.Repositories, task *model.Task, cadence recurrence.Cadence, now time.Time) (*model.Streak, int, int, error) {
	history, err := tx.Completions.ListByTask(ctx, task.ID)
	if err != nil {
		return nil, 0, 0, err
	}
	times := make([]time.Time, len(history))
	for i, c := range history {
		times[i] = s.clock.local(c.CompletedAt)
	}
	covered, err := tx.Instances.CoveredDates(ctx, task.ID)
	if err != nil {
		return nil, 0, 0, err
	}

	row, err := tx.Streaks.FindByTask(ctx, task.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = &model.Streak{TaskID: task.ID, UserID: task.UserID}
	} else if err != nil {
		return nil, 0, 0, fmt.Errorf("load streak: %w", err)
	}

	stats := streak.CalculateCovered(times, covered, cadence, task.StartDate, s.clock.Today())
	milestone, _ := streak.HasReachedMilestone(stats.CurrentStreak, row.CurrentStreak)
	ledger, delta := streak.Ledger{
		Earned:    row.EarnedBreaks,
		Available: row.AvailableBreaks,
		Used:      row.UsedBreaks,
	}.Accrue(stats.CurrentStreak)

	row.CurrentStreak = stats.CurrentStreak
	row.LongestStreak = stats.LongestStreak
	row.TotalCompletions = stats.TotalCompletions
	row.CompletionRate = stats.CompletionRate
	row.EarnedBreaks = ledger.Earned
	row.AvailableBreaks = ledger.Available
	row.UsedBreaks = ledger.Used
	row.NextMilestone = streak.NextMilestone(stats.CurrentStreak)
	row.LastCalculatedAt = &now
	if err := tx.Streaks.Upsert(ctx, row); err != nil {
		return nil, 0, 0, err
	}
	return row, milestone, delta, nil
}

func (s *InstanceService) notifyMilestone(ctx context.Context, userID uint, task *model.Task, result *CompletionResult) {
	user, err := s.repos.Users.FindByID(ctx, userID)
	if err != nil {
		logger.Service.Warn("load user for milestone", "user", userID, "error", err)
		return
	}
	s.dispatcher.Dispatch(notify.Message{
		Template: notify.TemplateMilestone,
		UserID:   user.ID,
		ChatID:   user.TelegramChatID,
		Email:    user.Email,
		Data: map[string]any{
			"task":          task.Title,
			"milestone":     result.Milestone,
			"breaks_earned": result.BreaksEarned,
		},
	})
}

// Skip marks an instance skipped. Skipping an already skipped instance just
// updates the reason. With useBreak, one break credit is spent and the
// skipped day keeps the streak alive; an instance spends at most one credit.
func (s *InstanceService) Skip(ctx context.Context, userID, id uint, reason string, useBreak bool) (*model.TaskInstance, error) {
	inst, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if inst.Status != model.StatusPending && inst.Status != model.StatusSkipped {
		return nil, transitionError("skip", inst.Status)
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if useBreak && !inst.BreakUsed {
			if err := spendBreak(ctx, tx, inst.TaskID); err != nil {
				return err
			}
			inst.BreakUsed = true
		}
		inst.Status = model.StatusSkipped
		inst.SkipReason = strings.TrimSpace(reason)
		return transition(ctx, tx, inst, model.StatusPending, model.StatusSkipped)
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

func spendBreak(ctx context.Context, tx *repository.Repositories, taskID uint) error {
	row, err := tx.Streaks.FindByTask(ctx, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNoBreaksAvailable
	}
	if err != nil {
		return fmt.Errorf("load streak: %w", err)
	}
	ledger, err := streak.Ledger{
		Earned:    row.EarnedBreaks,
		Available: row.AvailableBreaks,
		Used:      row.UsedBreaks,
	}.Spend()
	if errors.Is(err, streak.ErrNoCredits) {
		return ErrNoBreaksAvailable
	}
	row.AvailableBreaks = ledger.Available
	row.UsedBreaks = ledger.Used
	return tx.Streaks.Upsert(ctx, row)
}

// Reschedule moves a pending instance to newDate. The instance keeps its
// first original due date and becomes rescheduled; a fresh pending instance
// is created on newDate unless one is already there.
func (s *InstanceService) Reschedule(ctx context.Context, userID, id uint, newDate time.Time, reason string) (*model.TaskInstance, error) {
	if newDate.IsZero() {
		return nil, validationf("new date is required")
	}
	target := recurrence.DateOf(newDate)

	inst, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if inst.Status != model.StatusPending {
		return nil, transitionError("reschedule", inst.Status)
	}
	if recurrence.DateOf(inst.DueDate).Equal(target) {
		return nil, validationf("instance is already due on %s", target.Format(recurrence.DateLayout))
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if inst.OriginalDueDate == nil {
			original := recurrence.DateOf(inst.DueDate)
			inst.OriginalDueDate = &original
		}
		inst.DueDate = target
		inst.Status = model.StatusRescheduled
		inst.RescheduleReason = strings.TrimSpace(reason)
		if err := transition(ctx, tx, inst, model.StatusPending); err != nil {
			return err
		}
		_, err := tx.Instances.InsertPending(ctx, []model.TaskInstance{
			newPending(inst.TaskID, inst.UserID, target, inst.ScheduledTime),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// Reactivate returns a completed instance to pending. Only completed_at is
// cleared; the other completion fields stay until the next completion
// overwrites them.
func (s *InstanceService) Reactivate(ctx context.Context, userID, id uint) (*model.TaskInstance, error) {
	inst, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if inst.Status != model.StatusCompleted {
		return nil, transitionError("reactivate", inst.Status)
	}
	inst.Status = model.StatusPending
	inst.CompletedAt = nil
	if err := transition(ctx, s.repos, inst, model.StatusCompleted); err != nil {
		return nil, err
	}
	return inst, nil
}

// SetSubtask records whether a subtask is done on an instance. Setting the
// same value twice is a no-op.
func (s *InstanceService) SetSubtask(ctx context.Context, userID, id uint, subtaskID string, done bool) (*model.TaskInstance, error) {
	inst, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	task, err := s.repos.Tasks.FindByID(ctx, userID, inst.TaskID)
	if err != nil {
		return nil, notFound("task", err)
	}
	if !task.HasSubtask(subtaskID) {
		return nil, validationf("unknown subtask %q", subtaskID)
	}

	subtasks := copySubtasks(inst.SubtasksCompleted.Data())
	if current, ok := subtasks[subtaskID]; ok && current == done {
		return inst, nil
	}
	subtasks[subtaskID] = done
	inst.SubtasksCompleted = datatypes.NewJSONType(subtasks)
	if err := s.repos.Instances.Save(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Delete removes an instance regardless of its status. Its date is not
// materialized again.
func (s *InstanceService) Delete(ctx context.Context, userID, id uint) error {
	if err := s.repos.Instances.Delete(ctx, userID, id); err != nil {
		return notFound("instance", err)
	}
	return nil
}

func copySubtasks(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
