package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gyst/internal/model"
)

// UserRepository handles CRUD for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertByEmail finds or creates a user by email and refreshes profile fields.
func (r *UserRepository) UpsertByEmail(ctx context.Context, email, displayName string, telegramChatID int64) (*model.User, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("email = ?", email).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"display_name":     displayName,
			"telegram_chat_id": telegramChatID,
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		user.DisplayName = displayName
		user.TelegramChatID = telegramChatID
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{
			Email:          email,
			DisplayName:    displayName,
			TelegramChatID: telegramChatID,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) SetAvatar(ctx context.Context, id uint, url string) error {
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Update("avatar_url", url).Error; err != nil {
		return fmt.Errorf("set avatar: %w", err)
	}
	return nil
}
