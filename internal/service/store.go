package service

import (
	"context"
	"time"

	"userhub/internal/models"
)

// UserStore is the persistence the services need. Both repository
// implementations satisfy it.
type UserStore interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, id string, patch models.ProfilePatch) (models.User, error)
	Delete(ctx context.Context, id string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	SetResetToken(ctx context.Context, id string, tokenHash string, expiry time.Time) error
	ClearResetToken(ctx context.Context, id string) error
	RedeemResetToken(ctx context.Context, tokenHash string, now time.Time, apply func(*models.User) error) (models.User, error)
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

type TokenIssuer interface {
	Issue(userID string) (string, error)
}
