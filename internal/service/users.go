package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/flicky/marketplace-api/internal/dto"
	"github.com/flicky/marketplace-api/internal/model"
	"github.com/flicky/marketplace-api/internal/repository"
)

// UserAdminService is the account management behind the admin panel.
type UserAdminService struct {
	users   repository.UserRepository
	uploads *UploadService
	log     *slog.Logger
}

func NewUserAdminService(users repository.UserRepository, uploads *UploadService, log *slog.Logger) *UserAdminService {
	if log == nil {
		log = slog.Default()
	}
	return &UserAdminService{users: users, uploads: uploads, log: log}
}

func (s *UserAdminService) ListUsers(ctx context.Context) ([]dto.UserResponse, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	resp := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		resp = append(resp, toUserResponse(&users[i]))
	}
	return resp, nil
}

// ChangeRole sets the role of userID. Tokens already issued keep their old
// role until they expire.
func (s *UserAdminService) ChangeRole(ctx context.Context, adminID, userID uuid.UUID, role string) (dto.UserResponse, error) {
	if adminID == uuid.Nil {
		return dto.UserResponse{}, ErrUnauthenticated
	}
	if !model.ValidRole(role) {
		return dto.UserResponse{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return dto.UserResponse{}, ErrUserNotFound
		}
		return dto.UserResponse{}, fmt.Errorf("update role: %w", err)
	}
	s.log.Info("user role changed", "admin_id", adminID, "user_id", userID, "role", role)
	return s.get(ctx, userID)
}

// DeleteUser removes the account. Admins cannot delete themselves.
func (s *UserAdminService) DeleteUser(ctx context.Context, adminID, userID uuid.UUID) error {
	if adminID == uuid.Nil {
		return ErrUnauthenticated
	}
	if adminID == userID {
		return ErrCannotDeleteSelf
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	s.log.Info("user deleted", "admin_id", adminID, "user_id", userID)
	return nil
}

// SetProfileImage uploads the image and stores its URL on the admin's account.
func (s *UserAdminService) SetProfileImage(ctx context.Context, adminID uuid.UUID, file io.Reader, filename string, size int64) (dto.UserResponse, error) {
	url, err := s.uploads.UploadImage(ctx, adminID, file, filename, size)
	if err != nil {
		return dto.UserResponse{}, err
	}
	if err := s.users.UpdateProfileImage(ctx, adminID, url); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return dto.UserResponse{}, ErrUserNotFound
		}
		return dto.UserResponse{}, fmt.Errorf("update profile image: %w", err)
	}
	return s.get(ctx, adminID)
}

func (s *UserAdminService) get(ctx context.Context, id uuid.UUID) (dto.UserResponse, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return dto.UserResponse{}, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return dto.UserResponse{}, ErrUserNotFound
	}
	return toUserResponse(user), nil
}
