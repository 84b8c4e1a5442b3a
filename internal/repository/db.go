package repository

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"gyst/internal/logger"
	"gyst/internal/model"
)

// instanceUniqueIndex keeps one live instance per task and date. Rescheduled
// rows are excluded because a rescheduled instance moves to the same date as
// the pending sibling spawned for it. Deleted rows are excluded so an
// explicit reschedule can still land on a deleted date.
const instanceUniqueIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_instance_task_due_live
	ON task_instances(task_id, due_date) WHERE status <> 'rescheduled' AND deleted_at IS NULL`

// legacyInstanceIndex predates soft deletion.
const legacyInstanceIndex = `DROP INDEX IF EXISTS idx_instance_task_due`

// NewDB opens a SQLite database and runs migrations.
func NewDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "gyst.db"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := gormlogger.New(
		logger.StdLogger(logger.Store, slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: dbLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps :memory: DSNs
	// on one database.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.Category{},
		&model.Task{},
		&model.TaskInstance{},
		&model.TaskCompletion{},
		&model.Streak{},
		&model.ExternalEvent{},
		&model.Suggestion{},
	); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	if err := db.Exec(legacyInstanceIndex).Error; err != nil {
		return nil, fmt.Errorf("drop legacy instance index: %w", err)
	}
	if err := db.Exec(instanceUniqueIndex).Error; err != nil {
		return nil, fmt.Errorf("create instance index: %w", err)
	}

	return db, nil
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

// Repositories bundles the per-aggregate repositories over one handle so a
// service can run several of them inside a single transaction.
type Repositories struct {
	db          *gorm.DB
	Users       *UserRepository
	Categories  *CategoryRepository
	Tasks       *TaskRepository
	Instances   *InstanceRepository
	Completions *CompletionRepository
	Streaks     *StreakRepository
	Events      *EventRepository
	Suggestions *SuggestionRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:          db,
		Users:       NewUserRepository(db),
		Categories:  NewCategoryRepository(db),
		Tasks:       NewTaskRepository(db),
		Instances:   NewInstanceRepository(db),
		Completions: NewCompletionRepository(db),
		Streaks:     NewStreakRepository(db),
		Events:      NewEventRepository(db),
		Suggestions: NewSuggestionRepository(db),
	}
}

// Transaction runs fn with repositories bound to one transaction. Any error
// returned by fn rolls the transaction back.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
