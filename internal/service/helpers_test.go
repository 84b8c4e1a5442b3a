package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gyst/internal/model"
	"gyst/internal/notify"
	"gyst/internal/recurrence"
	"gyst/internal/repository"
)

// 2024-01-01 is a Monday.
var monday = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	err  error
	puts []string
}

func (f *fakeStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.puts = append(f.puts, key)
	return "/media/" + key, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingNotifier) byTemplate(name string) []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Message
	for _, m := range r.msgs {
		if m.Template == name {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	ctx        context.Context
	now        time.Time
	repos      *repository.Repositories
	store      *fakeStore
	notifier   *recordingNotifier
	dispatcher *notify.Dispatcher
	instances  *InstanceService
	tasks      *TaskService
	user       *model.User
}

// newFixture wires the services over a fresh SQLite file with a 14-day
// window and a clock starting on monday.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "gyst.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		ctx:      context.Background(),
		now:      monday,
		repos:    repository.NewRepositories(db),
		store:    &fakeStore{},
		notifier: &recordingNotifier{},
	}
	f.dispatcher = notify.NewDispatcher(f.notifier, time.Second)
	f.instances = NewInstanceService(f.repos, f.store, f.dispatcher, f.clock(), 14)
	f.tasks = NewTaskService(f.repos, f.instances, f.clock())

	f.user, err = f.repos.Users.UpsertByEmail(f.ctx, "ada@example.com", "Ada", 42)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return f
}

func (f *fixture) clock() Clock {
	return Clock{Now: func() time.Time { return f.now }, Location: time.UTC}
}

// advance moves the clock forward by days.
func (f *fixture) advance(days int) {
	f.now = f.now.AddDate(0, 0, days)
}

func (f *fixture) createTask(t *testing.T, in TaskInput) *model.Task {
	t.Helper()
	if in.Title == "" {
		in.Title = "Stretch"
	}
	if in.Frequency == "" {
		in.Frequency = "daily"
	}
	task, err := f.tasks.CreateTask(f.ctx, f.user.ID, in)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}

func (f *fixture) listInstances(t *testing.T, taskID uint) []model.TaskInstance {
	t.Helper()
	list, err := f.repos.Instances.ListByTask(f.ctx, taskID)
	if err != nil {
		t.Fatalf("ListByTask: %v", err)
	}
	return list
}

// instanceOn returns the live (non-rescheduled) instance of task on day.
func (f *fixture) instanceOn(t *testing.T, taskID uint, day time.Time) model.TaskInstance {
	t.Helper()
	for _, inst := range f.listInstances(t, taskID) {
		if inst.Status != model.StatusRescheduled && inst.DueDate.Equal(recurrence.DateOf(day)) {
			return inst
		}
	}
	t.Fatalf("no instance of task %d on %s", taskID, day.Format(recurrence.DateLayout))
	return model.TaskInstance{}
}

func (f *fixture) completeToday(t *testing.T, taskID uint, in CompletionInput) *CompletionResult {
	t.Helper()
	inst := f.instanceOn(t, taskID, f.now)
	res, err := f.instances.Complete(f.ctx, f.user.ID, inst.ID, in)
	if err != nil {
		t.Fatalf("Complete on %s: %v", f.now.Format(recurrence.DateLayout), err)
	}
	return res
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("err = %v, want %v", err, target)
	}
}

func intPtr(n int) *int { return &n }
