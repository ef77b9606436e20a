package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"mindmate.app/companion/internal/auth"
	"mindmate.app/companion/internal/logger"
	"mindmate.app/companion/internal/store"
)

type AuthService struct {
	store store.Store
	log   *logger.Logger
}

func NewAuthService(s store.Store, log *logger.Logger) *AuthService {
	return &AuthService{store: s, log: log}
}

// GenerateUserID builds an opaque id from the name and a random suffix.
func GenerateUserID(name string) string {
	return fmt.Sprintf("%s_%s", strings.ToLower(strings.TrimSpace(name)), uuid.NewString()[:5])
}

// Login verifies an existing user or registers an unknown name. The bool
// reports whether a new user was created.
func (s *AuthService) Login(ctx context.Context, name, password string) (*store.User, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return nil, false, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByName(ctx, name)
	switch {
	case err == nil:
		return s.verify(user, password)
	case !errors.Is(err, store.ErrNotFound):
		return nil, false, fmt.Errorf("failed to look up user: %w", err)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash password: %w", err)
	}
	user = &store.User{
		UserID:       GenerateUserID(name),
		Name:         name,
		PasswordHash: hashedPassword,
	}
	err = s.store.CreateUser(ctx, user)
	if errors.Is(err, store.ErrUserExists) {
		// Someone registered the same name between our lookup and insert.
		existing, getErr := s.store.GetUserByName(ctx, name)
		if getErr != nil {
			return nil, false, fmt.Errorf("failed to load concurrently created user: %w", getErr)
		}
		return s.verify(existing, password)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.Info("Registered new user", "user_id", user.UserID)
	return user, true, nil
}

func (s *AuthService) verify(user *store.User, password string) (*store.User, bool, error) {
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		s.log.Info("Incorrect password", "user_id", user.UserID)
		return nil, false, ErrIncorrectPassword
	}
	return user, false, nil
}
