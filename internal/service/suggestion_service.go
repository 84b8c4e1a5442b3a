package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"gyst/internal/logger"
	"gyst/internal/model"
	"gyst/internal/repository"
)

const (
	DefaultSuggestionLimit = 5
	MaxSuggestionLimit     = 10
)

// Suggestion sources.
const (
	SourceGenerator = "generator"
	SourceFallback  = "fallback"
)

// SuggestionRequest is the user context handed to a Generator.
type SuggestionRequest struct {
	DisplayName   string
	ExistingTasks []string
	Categories    []string
	Limit         int
}

// SuggestedTask is one task proposed by a Generator.
type SuggestedTask struct {
	Title               string
	Description         string
	Category            string
	Frequency           string
	CustomFrequencyDays int
	EstimatedMinutes    int
}

// Generator produces task suggestions, typically from a hosted text model.
type Generator interface {
	Suggest(ctx context.Context, req SuggestionRequest) ([]SuggestedTask, string, error)
}

// fallbackSuggestions are offered when no generator is configured or the
// generator fails.
var fallbackSuggestions = []SuggestedTask{
	{Title: "Drink a glass of water", Description: "Start the day hydrated.", Category: "Health", Frequency: "daily", EstimatedMinutes: 1},
	{Title: "10-minute walk", Description: "A short walk after lunch.", Category: "Health", Frequency: "daily", EstimatedMinutes: 10},
	{Title: "Read 10 pages", Description: "Keep a book within reach.", Category: "Learning", Frequency: "daily", EstimatedMinutes: 15},
	{Title: "Plan the week", Description: "Review goals and block time.", Category: "Productivity", Frequency: "weekly", EstimatedMinutes: 20},
	{Title: "Tidy the desk", Description: "Clear the workspace.", Category: "Home", Frequency: "custom", CustomFrequencyDays: 3, EstimatedMinutes: 5},
	{Title: "Call a friend", Description: "Stay in touch with someone you miss.", Category: "Social", Frequency: "weekly", EstimatedMinutes: 15},
	{Title: "Stretch", Description: "Five minutes of stretching.", Category: "Health", Frequency: "daily", EstimatedMinutes: 5},
	{Title: "Journal", Description: "Write three lines about the day.", Category: "Mindfulness", Frequency: "daily", EstimatedMinutes: 5},
	{Title: "Water the plants", Description: "Check the soil first.", Category: "Home", Frequency: "custom", CustomFrequencyDays: 4, EstimatedMinutes: 5},
	{Title: "Review finances", Description: "Look over spending and bills.", Category: "Finance", Frequency: "weekly", EstimatedMinutes: 30},
}

const fallbackMessage = "Here are a few small habits to get you started."

// SuggestionService proposes tasks and turns accepted proposals into tasks.
type SuggestionService struct {
	repos     *repository.Repositories
	tasks     *TaskService
	generator Generator
}

func NewSuggestionService(repos *repository.Repositories, tasks *TaskService, generator Generator) *SuggestionService {
	return &SuggestionService{repos: repos, tasks: tasks, generator: generator}
}

// Generate asks the generator for up to limit suggestions, falling back to
// the built-in list when it is missing or fails. Suggestions are cached as
// open rows; a caching failure is logged and the suggestions are still
// returned.
func (s *SuggestionService) Generate(ctx context.Context, userID uint, limit int) ([]model.Suggestion, error) {
	switch {
	case limit <= 0:
		limit = DefaultSuggestionLimit
	case limit > MaxSuggestionLimit:
		limit = MaxSuggestionLimit
	}

	req, err := s.request(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	proposed, message, source := s.propose(ctx, req)
	batchID := uuid.NewString()
	rows := make([]model.Suggestion, 0, len(proposed))
	for _, p := range proposed {
		if strings.TrimSpace(p.Title) == "" {
			continue
		}
		rows = append(rows, model.Suggestion{
			UserID:              userID,
			BatchID:             batchID,
			Title:               strings.TrimSpace(p.Title),
			Description:         p.Description,
			Category:            p.Category,
			Frequency:           p.Frequency,
			CustomFrequencyDays: p.CustomFrequencyDays,
			EstimatedMinutes:    p.EstimatedMinutes,
			Message:             message,
			Source:              source,
			Status:              model.SuggestionOpen,
		})
		if len(rows) == limit {
			break
		}
	}

	if err := s.repos.Suggestions.CreateBatch(ctx, rows); err != nil {
		logger.Service.Warn("cache suggestions", "user", userID, "error", err)
	}
	return rows, nil
}

func (s *SuggestionService) request(ctx context.Context, userID uint, limit int) (SuggestionRequest, error) {
	user, err := s.repos.Users.FindByID(ctx, userID)
	if err != nil {
		return SuggestionRequest{}, notFound("user", err)
	}
	tasks, err := s.repos.Tasks.ListByUser(ctx, userID)
	if err != nil {
		return SuggestionRequest{}, err
	}
	categories, err := s.repos.Categories.ListByUser(ctx, userID)
	if err != nil {
		return SuggestionRequest{}, err
	}

	req := SuggestionRequest{DisplayName: user.DisplayName, Limit: limit}
	for _, t := range tasks {
		req.ExistingTasks = append(req.ExistingTasks, t.Title)
	}
	for _, c := range categories {
		req.Categories = append(req.Categories, c.Name)
	}
	return req, nil
}

func (s *SuggestionService) propose(ctx context.Context, req SuggestionRequest) ([]SuggestedTask, string, string) {
	if s.generator != nil {
		proposed, message, err := s.generator.Suggest(ctx, req)
		if err == nil && len(proposed) > 0 {
			return proposed, message, SourceGenerator
		}
		if err != nil {
			logger.Service.Warn("suggestion generator failed, using fallback", "error", err)
		}
	}
	return fallback(req), fallbackMessage, SourceFallback
}

// fallback picks built-in suggestions the user does not already have.
func fallback(req SuggestionRequest) []SuggestedTask {
	have := make(map[string]struct{}, len(req.ExistingTasks))
	for _, title := range req.ExistingTasks {
		have[strings.ToLower(strings.TrimSpace(title))] = struct{}{}
	}
	var out []SuggestedTask
	for _, s := range fallbackSuggestions {
		if _, ok := have[strings.ToLower(s.Title)]; ok {
			continue
		}
		out = append(out, s)
		if len(out) == req.Limit {
			break
		}
	}
	return out
}

func (s *SuggestionService) List(ctx context.Context, userID uint) ([]model.Suggestion, error) {
	return s.repos.Suggestions.ListOpen(ctx, userID)
}

// Accept creates a task from an open suggestion and marks it accepted.
func (s *SuggestionService) Accept(ctx context.Context, userID, id uint) (*model.Task, error) {
	suggestion, err := s.open(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	input := TaskInput{
		Title:               suggestion.Title,
		Description:         suggestion.Description,
		Category:            suggestion.Category,
		Frequency:           suggestion.Frequency,
		CustomFrequencyDays: suggestion.CustomFrequencyDays,
	}
	if suggestion.EstimatedMinutes > 0 {
		minutes := suggestion.EstimatedMinutes
		input.EstimatedMinutes = &minutes
	}
	task, err := s.tasks.CreateTask(ctx, userID, input)
	if err != nil {
		return nil, err
	}

	suggestion.Status = model.SuggestionAccepted
	suggestion.TaskID = &task.ID
	if err := s.repos.Suggestions.Save(ctx, suggestion); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *SuggestionService) Dismiss(ctx context.Context, userID, id uint) error {
	suggestion, err := s.open(ctx, userID, id)
	if err != nil {
		return err
	}
	suggestion.Status = model.SuggestionDismissed
	return s.repos.Suggestions.Save(ctx, suggestion)
}

func (s *SuggestionService) open(ctx context.Context, userID, id uint) (*model.Suggestion, error) {
	suggestion, err := s.repos.Suggestions.FindByID(ctx, userID, id)
	if err != nil {
		return nil, notFound("suggestion", err)
	}
	if suggestion.Status != model.SuggestionOpen {
		return nil, fmt.Errorf("%w: suggestion already %s", ErrInvalidTransition, suggestion.Status)
	}
	return suggestion, nil
}
