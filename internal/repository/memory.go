package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"userhub/internal/models"
)

// MemoryUserRepository keeps users in process memory. It mirrors the Postgres
// repository's semantics and is used for local runs and tests.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]models.User
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]models.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user models.User) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[user.Email]; ok {
		return models.User{}, ErrEmailTaken
	}

	now := r.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.PasswordHistory == nil {
		user.PasswordHistory = []models.PasswordHistoryEntry{}
	}
	user = cloneUser(user)

	r.byID[user.ID] = user
	r.byEmail[user.Email] = user.ID
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return cloneUser(r.byID[id]), nil
}

func (r *MemoryUserRepository) FindByResetToken(_ context.Context, tokenHash string, now time.Time) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.findLiveToken(tokenHash, now)
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) List(_ context.Context) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]models.User, 0, len(r.byID))
	for _, u := range r.byID {
		users = append(users, cloneUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (r *MemoryUserRepository) Update(_ context.Context, id string, patch models.ProfilePatch) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}

	if patch.Email != nil && *patch.Email != user.Email {
		if _, taken := r.byEmail[*patch.Email]; taken {
			return models.User{}, ErrEmailTaken
		}
		delete(r.byEmail, user.Email)
		r.byEmail[*patch.Email] = id
	}

	patch.Apply(&user)
	user.UpdatedAt = r.now().UTC()
	r.byID[id] = user
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	delete(r.byID, id)
	delete(r.byEmail, user.Email)
	return nil
}

func (r *MemoryUserRepository) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return r.mutate(id, func(u *models.User) {
		at := at
		u.LastLogin = &at
	})
}

func (r *MemoryUserRepository) SetResetToken(_ context.Context, id string, tokenHash string, expiry time.Time) error {
	return r.mutate(id, func(u *models.User) {
		hash, exp := tokenHash, expiry
		u.ResetTokenHash = &hash
		u.ResetTokenExpiry = &exp
	})
}

func (r *MemoryUserRepository) ClearResetToken(_ context.Context, id string) error {
	return r.mutate(id, func(u *models.User) {
		u.ResetTokenHash = nil
		u.ResetTokenExpiry = nil
	})
}

// RedeemResetToken holds the write lock for the whole lookup-apply-persist
// sequence so a token can be redeemed only once.
func (r *MemoryUserRepository) RedeemResetToken(_ context.Context, tokenHash string, now time.Time, apply func(*models.User) error) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.findLiveToken(tokenHash, now)
	if !ok {
		return models.User{}, ErrUserNotFound
	}

	user := cloneUser(stored)
	if err := apply(&user); err != nil {
		return models.User{}, err
	}

	user.ResetTokenHash = nil
	user.ResetTokenExpiry = nil
	user.UpdatedAt = r.now().UTC()
	user = cloneUser(user)
	r.byID[user.ID] = user
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) ClearExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cleared int64
	for id, u := range r.byID {
		if u.ResetTokenExpiry == nil || u.ResetTokenExpiry.After(now) {
			continue
		}
		u.ResetTokenHash = nil
		u.ResetTokenExpiry = nil
		u.UpdatedAt = r.now().UTC()
		r.byID[id] = u
		cleared++
	}
	return cleared, nil
}

func (r *MemoryUserRepository) Ping(context.Context) error {
	return nil
}

func (r *MemoryUserRepository) findLiveToken(tokenHash string, now time.Time) (models.User, bool) {
	for _, u := range r.byID {
		if u.HasLiveResetToken(tokenHash, now) {
			return u, true
		}
	}
	return models.User{}, false
}

func (r *MemoryUserRepository) mutate(id string, fn func(*models.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(&user)
	user.UpdatedAt = r.now().UTC()
	r.byID[id] = user
	return nil
}

func cloneUser(u models.User) models.User {
	if u.PasswordHistory != nil {
		history := make([]models.PasswordHistoryEntry, len(u.PasswordHistory))
		copy(history, u.PasswordHistory)
		u.PasswordHistory = history
	}
	if u.ResetTokenHash != nil {
		v := *u.ResetTokenHash
		u.ResetTokenHash = &v
	}
	if u.ResetTokenExpiry != nil {
		v := *u.ResetTokenExpiry
		u.ResetTokenExpiry = &v
	}
	if u.LastLogin != nil {
		v := *u.LastLogin
		u.LastLogin = &v
	}
	return u
}
