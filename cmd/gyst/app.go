package main

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"gyst/internal/config"
	"gyst/internal/logger"
	"gyst/internal/notify"
	"gyst/internal/repository"
	"gyst/internal/service"
	"gyst/internal/storage"
	"gyst/internal/web"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg        config.Config
	db         *gorm.DB
	repos      *repository.Repositories
	dispatcher *notify.Dispatcher
	clock      service.Clock
	services   web.Services
	reminders  *service.ReminderService
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger.Init(cfg.LogFormat)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clock := service.SystemClock(loc)

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	repos := repository.NewRepositories(db)

	objects, err := storage.NewLocal(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		return nil, err
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		notifier = tg
	}
	dispatcher := notify.NewDispatcher(notifier, 30*time.Second)

	instances := service.NewInstanceService(repos, objects, dispatcher, clock, cfg.WindowDays)
	tasks := service.NewTaskService(repos, instances, clock)

	return &app{
		cfg:        cfg,
		db:         db,
		repos:      repos,
		dispatcher: dispatcher,
		clock:      clock,
		services: web.Services{
			Users:       service.NewUserService(repos, objects),
			Categories:  service.NewCategoryService(repos.Categories),
			Tasks:       tasks,
			Instances:   instances,
			Calendar:    service.NewCalendarService(repos, instances, repos.Events, clock),
			// No hosted generator is configured; suggestions come from the
			// built-in templates.
			Suggestions: service.NewSuggestionService(repos, tasks, nil),
		},
		reminders: service.NewReminderService(repos, instances, dispatcher, clock),
	}, nil
}

// Close waits for queued notifications and closes the database.
func (a *app) Close() {
	a.dispatcher.Wait()
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
