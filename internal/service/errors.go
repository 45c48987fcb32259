package service

import (
	"errors"

	"userhub/internal/repository"
)

var (
	ErrEmailTaken         = repository.ErrEmailTaken
	ErrUserNotFound       = repository.ErrUserNotFound
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrResetTokenInvalid  = errors.New("invalid or expired reset token")
	ErrPasswordReused     = errors.New("password used recently")
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrSelfDelete         = errors.New("cannot delete own account")
	ErrMailDelivery       = errors.New("reset email delivery failed")
)

// ValidationError is a client input problem. Message is the headline shown to
// the caller; Reasons lists individual rule violations when there are several.
type ValidationError struct {
	Message string
	Reasons []string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(message string, reasons ...string) error {
	return &ValidationError{Message: message, Reasons: reasons}
}
