// Package web exposes the planner over a JSON HTTP API.
package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"gyst/internal/logger"
	"gyst/internal/service"
)

// UserHeader carries the authenticated user id. Authentication itself is
// done by the fronting proxy.
const UserHeader = "X-User-ID"

const userKey = "userID"

// Services are the handlers' collaborators.
type Services struct {
	Users       *service.UserService
	Categories  *service.CategoryService
	Tasks       *service.TaskService
	Instances   *service.InstanceService
	Calendar    *service.CalendarService
	Suggestions *service.SuggestionService
}

// Server is the Gyst HTTP server.
type Server struct {
	svc    Services
	router *gin.Engine
	http   *http.Server
}

// NewServer builds the router. Uploaded media under mediaDir is served at
// mediaURL when both are set.
func NewServer(svc Services, mediaDir, mediaURL string) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{svc: svc, router: router}

	if mediaDir != "" && strings.HasPrefix(mediaURL, "/") {
		router.Static(mediaURL, mediaDir)
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/users", s.handleRegister)

	authed := api.Group("", requireUser())
	{
		authed.GET("/me", s.handleMe)
		authed.POST("/me/avatar", s.handleAvatar)
		authed.GET("/categories", s.handleCategories)

		authed.GET("/tasks", s.handleListTasks)
		authed.POST("/tasks", s.handleCreateTask)
		authed.GET("/tasks/:id", s.handleGetTask)
		authed.PATCH("/tasks/:id", s.handleUpdateTask)
		authed.DELETE("/tasks/:id", s.handleDeleteTask)
		authed.POST("/tasks/:id/pause", s.handlePauseTask)
		authed.POST("/tasks/:id/resume", s.handleResumeTask)
		authed.GET("/tasks/:id/streak", s.handleStreak)

		authed.POST("/materialize", s.handleMaterialize)
		authed.GET("/calendar", s.handleCalendar)
		authed.POST("/events/import", s.handleImportEvents)

		authed.POST("/instances/:id/complete", s.handleComplete)
		authed.POST("/instances/:id/skip", s.handleSkip)
		authed.POST("/instances/:id/reschedule", s.handleReschedule)
		authed.POST("/instances/:id/reactivate", s.handleReactivate)
		authed.PUT("/instances/:id/subtasks/:subtask", s.handleSubtask)
		authed.DELETE("/instances/:id", s.handleDeleteInstance)

		authed.GET("/suggestions", s.handleListSuggestions)
		authed.POST("/suggestions", s.handleGenerateSuggestions)
		authed.POST("/suggestions/:id/accept", s.handleAcceptSuggestion)
		authed.POST("/suggestions/:id/dismiss", s.handleDismissSuggestion)
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.HTTP.Info("listening", "addr", addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// requestLogger logs each request with method, path, status, and duration.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		dur := time.Since(start).Round(time.Millisecond)
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			logger.HTTP.Info(c.Request.Method+" "+path, "status", c.Writer.Status(), "dur", dur)
		} else {
			logger.HTTP.Debug(c.Request.Method+" "+path, "status", c.Writer.Status(), "dur", dur)
		}
	}
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.GetHeader(UserHeader), 10, 64)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "missing or invalid " + UserHeader,
			})
			return
		}
		c.Set(userKey, uint(id))
		c.Next()
	}
}

func currentUser(c *gin.Context) uint {
	return c.GetUint(userKey)
}
