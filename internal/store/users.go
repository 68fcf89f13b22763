package store

import (
	"context"
	"errors"

	"github.com/roomnotes/roomnotes-server/internal/domain"
)

// CreateUser stores a new user. Emails are unique, ignoring case.
func (s *Badger) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		return ErrInvalidInput.WithMessage("user id is required")
	}
	if err := s.Users.Create(ctx, user.ID, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return ErrEmailExists
		}
		return err
	}
	s.logger.Debug("user created", "user_id", user.ID)
	return nil
}

// GetUser retrieves a user by ID.
func (s *Badger) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.Users.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (s *Badger) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.Users.GetByIndex(ctx, "email", email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// UpdateUser replaces an existing user.
func (s *Badger) UpdateUser(ctx context.Context, user *domain.User) error {
	_, err := s.Users.Update(ctx, user.ID, user)
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, ErrAlreadyExists):
		return ErrEmailExists
	}
	return err
}
