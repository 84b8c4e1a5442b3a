package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"gyst/internal/model"
	"gyst/internal/repository"
	"gyst/internal/storage"
)

// UserService manages planner accounts.
type UserService struct {
	repos   *repository.Repositories
	objects storage.ObjectStore
}

func NewUserService(repos *repository.Repositories, objects storage.ObjectStore) *UserService {
	return &UserService{repos: repos, objects: objects}
}

// Register creates the account for email, or refreshes its display name and
// chat id if it already exists.
func (s *UserService) Register(ctx context.Context, email, displayName string, telegramChatID int64) (*model.User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, validationf("invalid email %q", email)
	}
	return s.repos.Users.UpsertByEmail(ctx, strings.ToLower(addr.Address), strings.TrimSpace(displayName), telegramChatID)
}

func (s *UserService) Get(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.repos.Users.FindByID(ctx, id)
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

// UploadAvatar stores the image and points the user's avatar at it.
func (s *UserService) UploadAvatar(ctx context.Context, id uint, data []byte, contentType string) (*model.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, validationf("avatar must be an image, got %q", contentType)
	}
	url, err := s.objects.Put(ctx, storage.AvatarKey(id, contentType), data, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}
	if err := s.repos.Users.SetAvatar(ctx, id, url); err != nil {
		return nil, err
	}
	user.AvatarURL = url
	return user, nil
}
