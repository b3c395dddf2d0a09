package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/flicky/marketplace-api/internal/dto"
	"github.com/flicky/marketplace-api/internal/model"
	"github.com/flicky/marketplace-api/internal/repository"
)

// accessClaims is the payload of the HS256 tokens this service signs.
// Subject carries the user id.
type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	users       repository.UserRepository
	secret      []byte
	ttl         time.Duration
	adminEmails map[string]bool
	now         func() time.Time
}

// NewAuthService signs tokens with secret. Accounts registered with one of
// adminEmails start out as admins; everyone else picks buyer or seller.
func NewAuthService(users repository.UserRepository, secret string, ttl time.Duration, adminEmails ...string) *AuthService {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = true
		}
	}
	return &AuthService{users: users, secret: []byte(secret), ttl: ttl, adminEmails: admins, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, req dto.RegisterRequest) (*dto.AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if existing, err := s.users.GetByEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	} else if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{Email: email, Password: string(hash), DisplayName: req.DisplayName, Role: s.initialRole(email, req.Role)}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return s.session(user)
}

// initialRole never lets a caller ask for admin; only the configured list grants it.
func (s *AuthService) initialRole(email, requested string) string {
	switch {
	case s.adminEmails[email]:
		return model.RoleAdmin
	case requested == model.RoleSeller:
		return model.RoleSeller
	default:
		return model.RoleBuyer
	}
}

func (s *AuthService) Login(ctx context.Context, req dto.LoginRequest) (*dto.AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(user)
}

// Profile returns the stored account of the caller.
func (s *AuthService) Profile(ctx context.Context, userID uuid.UUID) (dto.UserResponse, error) {
	if userID == uuid.Nil {
		return dto.UserResponse{}, ErrUnauthenticated
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return dto.UserResponse{}, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return dto.UserResponse{}, ErrUserNotFound
	}
	return toUserResponse(user), nil
}

func (s *AuthService) session(user *model.User) (*dto.AuthResponse, error) {
	issued := s.now()
	claims := accessClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &dto.AuthResponse{Token: token, User: toUserResponse(user)}, nil
}

func toUserResponse(user *model.User) dto.UserResponse {
	return dto.UserResponse{
		ID: user.ID, Email: user.Email, DisplayName: user.DisplayName,
		Role: user.Role, ProfileImage: user.ProfileImage,
	}
}
