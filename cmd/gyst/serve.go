package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"gyst/internal/logger"
	"gyst/internal/service"
	"gyst/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the daily digest job",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var serveNoDigest bool

// materializeEvery keeps every user's window topped up between requests.
const materializeEvery = 6 * time.Hour

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoDigest, "no-digest", false, "Do not schedule the daily digest")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := service.NewSchedulerService(a.clock.Location)
	if _, err := scheduler.ScheduleInterval(materializeEvery, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		n, users, err := materializeUsers(jobCtx, a, 0, 0)
		if err != nil {
			logger.Scheduler.Error("materialize", "error", err)
			return
		}
		logger.Scheduler.Info("materialized", "created", n, "users", users)
	}); err != nil {
		return err
	}
	if !serveNoDigest {
		if _, err := scheduler.ScheduleDaily(a.cfg.DigestTime, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := a.reminders.SendDailyDigests(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Scheduler.Error("daily digest", "error", err)
			}
		}); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	gin.SetMode(gin.ReleaseMode)
	server := web.NewServer(a.services, a.cfg.MediaDir, a.cfg.MediaBaseURL)

	logger.Main.Info("gyst started", "addr", a.cfg.HTTPAddr, "window_days", a.cfg.WindowDays)
	if err := server.Run(ctx, a.cfg.HTTPAddr); err != nil {
		return err
	}
	logger.Main.Info("shutdown complete")
	return nil
}
