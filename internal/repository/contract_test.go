package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userhub/internal/ids"
	"userhub/internal/models"
)

type userStore interface {
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

var (
	_ userStore = (*UserRepository)(nil)
	_ userStore = (*MemoryUserRepository)(nil)
)

func newTestUser(email string) models.User {
	return models.User{
		ID:           ids.New(),
		Email:        email,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Gender:       models.GenderFemale,
		MobileNumber: "555-0100",
		City:         "London",
		Role:         models.UserRoleEmployee,
		PasswordHash: "hash-0",
		PasswordHistory: []models.PasswordHistoryEntry{
			{Hash: "hash-0", ChangedAt: time.Now().UTC().Truncate(time.Second)},
		},
	}
}

// runStoreContract exercises the behaviour both store implementations share.
func runStoreContract(t *testing.T, fresh func(t *testing.T) userStore) {
	ctx := context.Background()

	t.Run("create and read back", func(t *testing.T) {
		store := fresh(t)
		created, err := store.Create(ctx, newTestUser("ada@example.com"))
		require.NoError(t, err)
		assert.False(t, created.CreatedAt.IsZero())
		require.Len(t, created.PasswordHistory, 1)

		byID, err := store.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", byID.Email)
		assert.Equal(t, models.GenderFemale, byID.Gender)
		assert.Nil(t, byID.ResetTokenHash)
		assert.Nil(t, byID.LastLogin)

		byEmail, err := store.FindByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		store := fresh(t)
		_, err := store.Create(ctx, newTestUser("dup@example.com"))
		require.NoError(t, err)

		_, err = store.Create(ctx, newTestUser("dup@example.com"))
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("missing user", func(t *testing.T) {
		store := fresh(t)
		_, err := store.GetByID(ctx, ids.New())
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = store.FindByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.ErrorIs(t, store.Delete(ctx, ids.New()), ErrUserNotFound)
		assert.ErrorIs(t, store.TouchLastLogin(ctx, ids.New(), time.Now()), ErrUserNotFound)
		_, err = store.Update(ctx, ids.New(), models.ProfilePatch{})
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("list and delete", func(t *testing.T) {
		store := fresh(t)
		a, err := store.Create(ctx, newTestUser("a@example.com"))
		require.NoError(t, err)
		_, err = store.Create(ctx, newTestUser("b@example.com"))
		require.NoError(t, err)

		users, err := store.List(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 2)

		require.NoError(t, store.Delete(ctx, a.ID))
		_, err = store.GetByID(ctx, a.ID)
		assert.ErrorIs(t, err, ErrUserNotFound)

		// the email is free again
		_, err = store.Create(ctx, newTestUser("a@example.com"))
		assert.NoError(t, err)
	})

	t.Run("update applies only set fields", func(t *testing.T) {
		store := fresh(t)
		u, err := store.Create(ctx, newTestUser("upd@example.com"))
		require.NoError(t, err)

		city := "Paris"
		role := models.UserRoleManager
		updated, err := store.Update(ctx, u.ID, models.ProfilePatch{City: &city, Role: &role})
		require.NoError(t, err)
		assert.Equal(t, "Paris", updated.City)
		assert.Equal(t, models.UserRoleManager, updated.Role)
		assert.Equal(t, "Ada", updated.FirstName)
		assert.Equal(t, "upd@example.com", updated.Email)
	})

	t.Run("update to taken email", func(t *testing.T) {
		store := fresh(t)
		_, err := store.Create(ctx, newTestUser("first@example.com"))
		require.NoError(t, err)
		second, err := store.Create(ctx, newTestUser("second@example.com"))
		require.NoError(t, err)

		taken := "first@example.com"
		_, err = store.Update(ctx, second.ID, models.ProfilePatch{Email: &taken})
		assert.ErrorIs(t, err, ErrEmailTaken)

		free := "third@example.com"
		moved, err := store.Update(ctx, second.ID, models.ProfilePatch{Email: &free})
		require.NoError(t, err)
		assert.Equal(t, free, moved.Email)

		_, err = store.FindByEmail(ctx, "second@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("touch last login", func(t *testing.T) {
		store := fresh(t)
		u, err := store.Create(ctx, newTestUser("login@example.com"))
		require.NoError(t, err)

		at := time.Now().UTC()
		require.NoError(t, store.TouchLastLogin(ctx, u.ID, at))

		got, err := store.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastLogin)
		assert.WithinDuration(t, at, *got.LastLogin, time.Millisecond)
	})

	t.Run("reset token lifecycle", func(t *testing.T) {
		store := fresh(t)
		u, err := store.Create(ctx, newTestUser("reset@example.com"))
		require.NoError(t, err)

		now := time.Now().UTC()
		require.NoError(t, store.SetResetToken(ctx, u.ID, "digest-1", now.Add(15*time.Minute)))

		found, err := store.FindByResetToken(ctx, "digest-1", now)
		require.NoError(t, err)
		assert.Equal(t, u.ID, found.ID)

		_, err = store.FindByResetToken(ctx, "digest-1", now.Add(16*time.Minute))
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = store.FindByResetToken(ctx, "other", now)
		assert.ErrorIs(t, err, ErrUserNotFound)

		require.NoError(t, store.ClearResetToken(ctx, u.ID))
		_, err = store.FindByResetToken(ctx, "digest-1", now)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("redeem persists changes and clears token", func(t *testing.T) {
		store := fresh(t)
		u, err := store.Create(ctx, newTestUser("redeem@example.com"))
		require.NoError(t, err)

		now := time.Now().UTC()
		require.NoError(t, store.SetResetToken(ctx, u.ID, "digest-2", now.Add(time.Minute)))

		updated, err := store.RedeemResetToken(ctx, "digest-2", now, func(user *models.User) error {
			user.PasswordHash = "hash-1"
			user.PasswordHistory = append([]models.PasswordHistoryEntry{{Hash: "hash-1", ChangedAt: now}}, user.PasswordHistory...)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "hash-1", updated.PasswordHash)
		assert.Len(t, updated.PasswordHistory, 2)
		assert.Nil(t, updated.ResetTokenHash)
		assert.Nil(t, updated.ResetTokenExpiry)

		_, err = store.RedeemResetToken(ctx, "digest-2", now, func(*models.User) error { return nil })
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("redeem rejection keeps token", func(t *testing.T) {
		store := fresh(t)
		u, err := store.Create(ctx, newTestUser("keep@example.com"))
		require.NoError(t, err)

		now := time.Now().UTC()
		require.NoError(t, store.SetResetToken(ctx, u.ID, "digest-3", now.Add(time.Minute)))

		rejected := errors.New("rejected")
		_, err = store.RedeemResetToken(ctx, "digest-3", now, func(user *models.User) error {
			user.PasswordHash = "should-not-stick"
			return rejected
		})
		assert.ErrorIs(t, err, rejected)

		got, err := store.FindByResetToken(ctx, "digest-3", now)
		require.NoError(t, err)
		assert.Equal(t, "hash-0", got.PasswordHash)
	})

	t.Run("concurrent redeem has one winner", func(t *testing.T) {
		store := fresh(t)
		u, err := store.Create(ctx, newTestUser("race@example.com"))
		require.NoError(t, err)

		now := time.Now().UTC()
		require.NoError(t, store.SetResetToken(ctx, u.ID, "digest-4", now.Add(time.Minute)))

		var wins, losses atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.RedeemResetToken(ctx, "digest-4", now, func(user *models.User) error {
					user.PasswordHash = "winner"
					return nil
				})
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, ErrUserNotFound):
					losses.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(7), losses.Load())
	})

	t.Run("sweep clears only expired tokens", func(t *testing.T) {
		store := fresh(t)
		expired, err := store.Create(ctx, newTestUser("old@example.com"))
		require.NoError(t, err)
		live, err := store.Create(ctx, newTestUser("new@example.com"))
		require.NoError(t, err)

		now := time.Now().UTC()
		require.NoError(t, store.SetResetToken(ctx, expired.ID, "old", now.Add(-time.Minute)))
		require.NoError(t, store.SetResetToken(ctx, live.ID, "new", now.Add(time.Minute)))

		cleared, err := store.ClearExpiredResetTokens(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), cleared)

		got, err := store.GetByID(ctx, expired.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ResetTokenHash)

		_, err = store.FindByResetToken(ctx, "new", now)
		assert.NoError(t, err)
	})
}
