package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"gyst/internal/model"
)

// SuggestionRepository caches generated task suggestions.
type SuggestionRepository struct {
	db *gorm.DB
}

func NewSuggestionRepository(db *gorm.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

func (r *SuggestionRepository) CreateBatch(ctx context.Context, suggestions []model.Suggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&suggestions).Error; err != nil {
		return fmt.Errorf("create suggestions: %w", err)
	}
	return nil
}

func (r *SuggestionRepository) ListOpen(ctx context.Context, userID uint) ([]model.Suggestion, error) {
	var suggestions []model.Suggestion
	if err := r.db.WithContext(ctx).Where("user_id = ? AND status = ?", userID, model.SuggestionOpen).
		Order("id DESC").
		Find(&suggestions).Error; err != nil {
		return nil, err
	}
	return suggestions, nil
}

func (r *SuggestionRepository) FindByID(ctx context.Context, userID, id uint) (*model.Suggestion, error) {
	var s model.Suggestion
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SuggestionRepository) Save(ctx context.Context, s *model.Suggestion) error {
	if err := r.db.WithContext(ctx).Save(s).Error; err != nil {
		return fmt.Errorf("save suggestion: %w", err)
	}
	return nil
}
