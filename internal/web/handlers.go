package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gyst/internal/logger"
	"gyst/internal/model"
	"gyst/internal/recurrence"
	"gyst/internal/service"
	"gyst/internal/storage"
)

const maxUploadSize = storage.MaxObjectSize

// respondError maps service errors onto HTTP statuses. Unexpected errors are
// logged and reported without detail.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, storage.ErrEmptyObject),
		errors.Is(err, storage.ErrObjectTooBig):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrNoBreaksAvailable):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.HTTP.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		msg = "internal error"
	}
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return uint(id), true
}

// bindOptionalJSON binds the body into dst when one is present.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func parseDay(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return recurrence.ParseDate(raw)
}

// Users

type registerRequest struct {
	Email          string `json:"email" binding:"required"`
	DisplayName    string `json:"display_name"`
	TelegramChatID int64  `json:"telegram_chat_id"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	user, err := s.svc.Users.Register(c.Request.Context(), req.Email, req.DisplayName, req.TelegramChatID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

func (s *Server) handleMe(c *gin.Context) {
	user, err := s.svc.Users.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

func (s *Server) handleAvatar(c *gin.Context) {
	data, contentType, err := readUpload(c, "file")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if data == nil {
		badRequest(c, "file is required")
		return
	}
	user, err := s.svc.Users.UploadAvatar(c.Request.Context(), currentUser(c), data, contentType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// readUpload returns the bytes of a multipart file field, or nil when the
// field is absent.
func readUpload(c *gin.Context, field string) ([]byte, string, error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	if header.Size > maxUploadSize {
		return nil, "", fmt.Errorf("%s exceeds %d bytes", field, maxUploadSize)
	}
	f, err := header.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func (s *Server) handleCategories(c *gin.Context) {
	categories, err := s.svc.Categories.List(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "categories": categories})
}

// Tasks

type taskRequest struct {
	Title                 string              `json:"title"`
	Description           string              `json:"description"`
	Category              string              `json:"category"`
	Frequency             string              `json:"frequency"`
	CustomFrequencyDays   int                 `json:"custom_frequency_days"`
	RecurrencePattern     *recurrence.Pattern `json:"recurrence_pattern"`
	StartDate             string              `json:"start_date"`
	PreferredTime         string              `json:"preferred_time"`
	EstimatedMinutes      *int                `json:"estimated_minutes"`
	ReminderMinutesBefore *int                `json:"reminder_minutes_before"`
	Subtasks              []string            `json:"subtasks"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	input := service.TaskInput{
		Title:                 req.Title,
		Description:           req.Description,
		Category:              req.Category,
		Frequency:             req.Frequency,
		CustomFrequencyDays:   req.CustomFrequencyDays,
		Pattern:               req.RecurrencePattern,
		PreferredTime:         req.PreferredTime,
		EstimatedMinutes:      req.EstimatedMinutes,
		ReminderMinutesBefore: req.ReminderMinutesBefore,
		Subtasks:              req.Subtasks,
	}
	if req.StartDate != "" {
		start, err := parseDay(req.StartDate)
		if err != nil {
			badRequest(c, "start_date must be YYYY-MM-DD")
			return
		}
		input.StartDate = &start
	}

	task, err := s.svc.Tasks.CreateTask(c.Request.Context(), currentUser(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "task": task})
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.svc.Tasks.ListTasks(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleGetTask(c *gin.Context) {
	s.withTask(c, s.svc.Tasks.GetTask)
}

func (s *Server) handlePauseTask(c *gin.Context) {
	s.withTask(c, s.svc.Tasks.PauseTask)
}

func (s *Server) handleResumeTask(c *gin.Context) {
	s.withTask(c, s.svc.Tasks.ResumeTask)
}

type taskAction func(ctx context.Context, userID, taskID uint) (*model.Task, error)

func (s *Server) withTask(c *gin.Context, action taskAction) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	task, err := action(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "task": task})
}

type taskUpdateRequest struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Category      *string `json:"category"`
	PreferredTime *string `json:"preferred_time"`
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req taskUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	task, err := s.svc.Tasks.UpdateTask(c.Request.Context(), currentUser(c), id, service.TaskUpdate{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		PreferredTime: req.PreferredTime,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "task": task})
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Tasks.DeleteTask(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleStreak(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	row, err := s.svc.Tasks.Streak(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "streak": row})
}

// Materialization and calendar

func (s *Server) handleMaterialize(c *gin.Context) {
	days := 0
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "days must be a number")
			return
		}
		days = n
	}
	created, err := s.svc.Instances.Materialize(c.Request.Context(), currentUser(c), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "created": created})
}

func (s *Server) handleCalendar(c *gin.Context) {
	from, err := parseDay(c.Query("from"))
	if err != nil {
		badRequest(c, "from must be YYYY-MM-DD")
		return
	}
	to, err := parseDay(c.Query("to"))
	if err != nil {
		badRequest(c, "to must be YYYY-MM-DD")
		return
	}
	items, err := s.svc.Calendar.View(c.Request.Context(), currentUser(c), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "items": items, "count": len(items)})
}

type importRequest struct {
	Provider string        `json:"provider" binding:"required"`
	Events   []importEvent `json:"events"`
}

type importEvent struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	AllDay           bool      `json:"all_day"`
	BlocksScheduling bool      `json:"blocks_scheduling"`
}

func (s *Server) handleImportEvents(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	events := make([]service.ImportedEvent, 0, len(req.Events))
	for _, ev := range req.Events {
		events = append(events, service.ImportedEvent{
			ExternalID:       ev.ID,
			Title:            ev.Title,
			Start:            ev.Start,
			End:              ev.End,
			AllDay:           ev.AllDay,
			BlocksScheduling: ev.BlocksScheduling,
		})
	}
	n, err := s.svc.Calendar.ImportEvents(c.Request.Context(), currentUser(c), req.Provider, events)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "imported": n})
}

// Instances

type completeRequest struct {
	Mood          string          `json:"mood" form:"mood"`
	ActualMinutes *int            `json:"actual_minutes" form:"actual_minutes"`
	Notes         string          `json:"notes" form:"notes"`
	Subtasks      map[string]bool `json:"subtasks_completed" form:"-"`
}

// handleComplete accepts JSON, or multipart with an optional "photo" file and
// subtasks_completed as a JSON-encoded field.
func (s *Server) handleComplete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req completeRequest
	var photo []byte
	var photoType string
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		if err := c.ShouldBind(&req); err != nil {
			badRequest(c, "invalid form: "+err.Error())
			return
		}
		if raw := c.PostForm("subtasks_completed"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Subtasks); err != nil {
				badRequest(c, "subtasks_completed must be a JSON object")
				return
			}
		}
		var err error
		photo, photoType, err = readUpload(c, "photo")
		if err != nil {
			badRequest(c, err.Error())
			return
		}
	} else if !bindOptionalJSON(c, &req) {
		return
	}

	result, err := s.svc.Instances.Complete(c.Request.Context(), currentUser(c), id, service.CompletionInput{
		Mood:             model.Mood(req.Mood),
		ActualMinutes:    req.ActualMinutes,
		Notes:            req.Notes,
		Photo:            photo,
		PhotoContentType: photoType,
		Subtasks:         req.Subtasks,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

type skipRequest struct {
	Reason   string `json:"reason"`
	UseBreak bool   `json:"use_break"`
}

func (s *Server) handleSkip(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req skipRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	inst, err := s.svc.Instances.Skip(c.Request.Context(), currentUser(c), id, req.Reason, req.UseBreak)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "instance": inst})
}

type rescheduleRequest struct {
	Date   string `json:"date" binding:"required"`
	Reason string `json:"reason"`
}

func (s *Server) handleReschedule(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	date, err := parseDay(req.Date)
	if err != nil {
		badRequest(c, "date must be YYYY-MM-DD")
		return
	}
	inst, err := s.svc.Instances.Reschedule(c.Request.Context(), currentUser(c), id, date, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "instance": inst})
}

func (s *Server) handleReactivate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	inst, err := s.svc.Instances.Reactivate(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "instance": inst})
}

type subtaskRequest struct {
	Done bool `json:"done"`
}

func (s *Server) handleSubtask(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req subtaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	inst, err := s.svc.Instances.SetSubtask(c.Request.Context(), currentUser(c), id, c.Param("subtask"), req.Done)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "instance": inst})
}

func (s *Server) handleDeleteInstance(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Instances.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Suggestions

func (s *Server) handleListSuggestions(c *gin.Context) {
	suggestions, err := s.svc.Suggestions.List(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "suggestions": suggestions})
}

func (s *Server) handleGenerateSuggestions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	suggestions, err := s.svc.Suggestions.Generate(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "suggestions": suggestions})
}

func (s *Server) handleAcceptSuggestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	task, err := s.svc.Suggestions.Accept(c.Request.Context(), currentUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "task": task})
}

func (s *Server) handleDismissSuggestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Suggestions.Dismiss(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
