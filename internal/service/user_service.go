package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"userhub/internal/ids"
	"userhub/internal/models"
	"userhub/internal/policy"
)

// RestrictedFields may never be changed through the directory update.
var RestrictedFields = []string{
	"password",
	"lastLogin",
	"passwordHistory",
	"resetToken",
	"resetTokenExpiry",
}

type UserService struct {
	users UserStore
	log   zerolog.Logger
}

func NewUserService(users UserStore, log zerolog.Logger) *UserService {
	return &UserService{
		users: users,
		log:   log.With().Str("service", "users").Logger(),
	}
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	if !ids.Valid(id) {
		return models.User{}, ErrInvalidUserID
	}
	return s.users.GetByID(ctx, id)
}

type UpdateInput struct {
	// Fields holds the keys present in the request body.
	Fields []string
	Patch  models.ProfilePatch
}

func (s *UserService) Update(ctx context.Context, id string, input UpdateInput) (models.User, error) {
	for _, field := range input.Fields {
		for _, restricted := range RestrictedFields {
			if field == restricted {
				return models.User{}, invalid("Cannot update restricted fields")
			}
		}
	}
	if !ids.Valid(id) {
		return models.User{}, ErrInvalidUserID
	}

	patch := normalizePatch(input.Patch)

	current, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	merged := current
	patch.Apply(&merged)
	if reasons := validateProfile(merged); len(reasons) > 0 {
		return models.User{}, invalid("Validation failed", reasons...)
	}

	updated, err := s.users.Update(ctx, id, patch)
	if err != nil {
		return models.User{}, err
	}

	s.log.Info().Str("user_id", id).Msg("user updated")
	return updated, nil
}

func normalizePatch(p models.ProfilePatch) models.ProfilePatch {
	trim := func(v *string, fn func(string) string) *string {
		if v == nil {
			return nil
		}
		out := fn(*v)
		return &out
	}
	p.Email = trim(p.Email, normalizeEmail)
	p.FirstName = trim(p.FirstName, strings.TrimSpace)
	p.LastName = trim(p.LastName, strings.TrimSpace)
	p.MobileNumber = trim(p.MobileNumber, strings.TrimSpace)
	p.City = trim(p.City, strings.TrimSpace)
	return p
}

func validateProfile(u models.User) []string {
	var reasons []string
	required := []struct {
		name  string
		value string
	}{
		{"email", u.Email},
		{"firstName", u.FirstName},
		{"lastName", u.LastName},
		{"mobileNumber", u.MobileNumber},
	}
	for _, field := range required {
		if field.value == "" {
			reasons = append(reasons, field.name+" is required")
		}
	}
	if u.Email != "" && !policy.ValidEmail(u.Email) {
		reasons = append(reasons, "Email format is invalid")
	}
	if !u.Gender.Valid() {
		reasons = append(reasons, "Gender must be one of Male, Female, Other")
	}
	if !u.Role.Valid() {
		reasons = append(reasons, "Role must be one of Employee, Admin, Manager")
	}
	return reasons
}

// Delete removes a user. An actor can never delete their own account.
func (s *UserService) Delete(ctx context.Context, actorID string, id string) error {
	if actorID == id {
		return ErrSelfDelete
	}
	if !ids.Valid(id) {
		return ErrUserNotFound
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	s.log.Info().Str("user_id", id).Str("actor_id", actorID).Msg("user deleted")
	return nil
}
