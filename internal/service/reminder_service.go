package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"gyst/internal/logger"
	"gyst/internal/model"
	"gyst/internal/notify"
	"gyst/internal/repository"
)

// ReminderService builds human-readable summaries for daily notifications.
type ReminderService struct {
	repos      *repository.Repositories
	instances  *InstanceService
	dispatcher *notify.Dispatcher
	clock      Clock
}

func NewReminderService(repos *repository.Repositories, instances *InstanceService, dispatcher *notify.Dispatcher, clock Clock) *ReminderService {
	return &ReminderService{repos: repos, instances: instances, dispatcher: dispatcher, clock: clock}
}

// DailyDigest renders today's instances of the user as HTML chat text.
func (s *ReminderService) DailyDigest(ctx context.Context, user model.User, today time.Time) (string, error) {
	instances, err := s.repos.Instances.ListRange(ctx, user.ID, today, today)
	if err != nil {
		return "", err
	}
	overdue, err := s.repos.Instances.CountOverdue(ctx, user.ID, today)
	if err != nil {
		return "", err
	}

	ids := make([]uint, 0, len(instances))
	for _, inst := range instances {
		ids = append(ids, inst.TaskID)
	}
	tasks, err := s.repos.Tasks.ListByIDs(ctx, user.ID, ids)
	if err != nil {
		return "", err
	}
	titles := make(map[uint]model.Task, len(tasks))
	for _, t := range tasks {
		titles[t.ID] = t
	}

	var pending, done []string
	for _, inst := range instances {
		task, ok := titles[inst.TaskID]
		if !ok || !task.IsActive {
			continue
		}
		switch inst.Status {
		case model.StatusPending:
			pending = append(pending, formatInstance(task, inst))
		case model.StatusCompleted:
			done = append(done, formatInstance(task, inst))
		}
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Today</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", today.Format("Mon, 02 Jan 2006")))

	builder.WriteString("🔥 <b>To do</b>\n")
	if len(pending) == 0 {
		builder.WriteString("— nothing left for today\n")
	} else {
		for _, line := range pending {
			builder.WriteString(line)
		}
	}

	if len(done) > 0 {
		builder.WriteString("\n✅ <b>Done</b>\n")
		for _, line := range done {
			builder.WriteString(line)
		}
	}
	if overdue > 0 {
		builder.WriteString(fmt.Sprintf("\n⚠️ %d overdue from earlier days\n", overdue))
	}

	return strings.TrimSpace(builder.String()), nil
}

func formatInstance(task model.Task, inst model.TaskInstance) string {
	var sb strings.Builder
	sb.WriteString("• ")
	if inst.ScheduledTime != "" {
		sb.WriteString(fmt.Sprintf("<b>%s</b> ", inst.ScheduledTime))
	}
	sb.WriteString(html.EscapeString(strings.TrimSpace(task.Title)))
	if task.EstimatedMinutes > 0 {
		sb.WriteString(fmt.Sprintf(" <i>(~%d min)</i>", task.EstimatedMinutes))
	}
	sb.WriteByte('\n')
	return sb.String()
}

// SendDailyDigests materializes every user's window and queues one digest
// per user. A failure for one user is logged and the rest still get theirs.
func (s *ReminderService) SendDailyDigests(ctx context.Context) error {
	users, err := s.repos.Users.ListAll(ctx)
	if err != nil {
		return err
	}
	today := s.clock.Today()

	var errs []error
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.instances != nil {
			if _, err := s.instances.Materialize(ctx, user.ID, 0); err != nil {
				logger.Scheduler.Warn("materialize for digest", "user", user.ID, "error", err)
			}
		}
		text, err := s.DailyDigest(ctx, user, today)
		if err != nil {
			errs = append(errs, fmt.Errorf("digest for user %d: %w", user.ID, err))
			continue
		}
		s.dispatcher.Dispatch(notify.Message{
			Template: notify.TemplateDailyDigest,
			UserID:   user.ID,
			ChatID:   user.TelegramChatID,
			Email:    user.Email,
			Data:     map[string]any{"text": text},
		})
	}
	return errors.Join(errs...)
}
