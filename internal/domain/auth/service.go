package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (AuthUser, error)
	UpdateLastLogin(ctx context.Context, userID int64) error
}

type Service struct {
	store  UserStore
	secret string
	ttl    time.Duration
}

func NewService(store UserStore, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Service{store: store, secret: secret, ttl: ttl}
}

type LoginResult struct {
	Token string      `json:"token"`
	User  UserSummary `json:"user"`
}

type UserSummary struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Name  string `json:"name"`
}

func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := CheckPassword(user.Password, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := GenerateToken(s.secret, Claims{UserID: user.ID, Email: user.Email, Role: user.Role}, s.ttl)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.store.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("update last_login failed", "userId", user.ID, "err", err)
	}

	return LoginResult{
		Token: token,
		User: UserSummary{
			ID:    user.ID,
			Email: user.Email,
			Role:  user.Role,
			Name:  user.FirstName + " " + user.LastName,
		},
	}, nil
}
