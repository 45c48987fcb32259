package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"userhub/internal/config"
	"userhub/internal/ids"
	"userhub/internal/mail"
	"userhub/internal/models"
	"userhub/internal/policy"
	"userhub/internal/security"
)

type AuthService struct {
	users  UserStore
	hasher security.PasswordHasher
	tokens TokenIssuer
	mailer mail.Mailer
	cfg    *config.AppConfig
	log    zerolog.Logger
	now    func() time.Time
}

func NewAuthService(
	users UserStore,
	hasher security.PasswordHasher,
	tokens TokenIssuer,
	mailer mail.Mailer,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		mailer: mailer,
		cfg:    cfg,
		log:    log.With().Str("service", "auth").Logger(),
		now:    time.Now,
	}
}

type RegisterInput struct {
	Email        string
	Password     string
	FirstName    string
	LastName     string
	Gender       string
	MobileNumber string
	City         string
	Role         string
}

type AuthResult struct {
	Token string
	User  models.User
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = normalizeEmail(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.MobileNumber = strings.TrimSpace(input.MobileNumber)
	input.City = strings.TrimSpace(input.City)

	if reasons := validateRegistration(input); len(reasons) > 0 {
		return AuthResult{}, invalid("Validation failed", reasons...)
	}

	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return AuthResult{}, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return AuthResult{}, fmt.Errorf("lookup email: %w", err)
	}

	passwordHash, err := s.hashPassword(input.Password, "Validation failed")
	if err != nil {
		return AuthResult{}, err
	}

	role := models.UserRoleEmployee
	if input.Role != "" {
		role = models.UserRole(input.Role)
	}

	user, err := s.users.Create(ctx, models.User{
		ID:           ids.New(),
		Email:        input.Email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Gender:       models.Gender(input.Gender),
		MobileNumber: input.MobileNumber,
		City:         input.City,
		Role:         role,
		PasswordHash: passwordHash,
		PasswordHistory: []models.PasswordHistoryEntry{
			{Hash: passwordHash, ChangedAt: s.now().UTC()},
		},
	})
	if err != nil {
		return AuthResult{}, err
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("user registered")
	return AuthResult{Token: token, User: user}, nil
}

// hashPassword reports a password the hasher cannot accept as a validation
// failure under message.
func (s *AuthService) hashPassword(password string, message string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if errors.Is(err, security.ErrPasswordTooLong) {
		return "", invalid(message, fmt.Sprintf("Password must be at most %d bytes", security.BcryptMaxPasswordBytes))
	}
	return hash, err
}

func validateRegistration(input RegisterInput) []string {
	var reasons []string

	required := []struct {
		name  string
		value string
	}{
		{"email", input.Email},
		{"firstName", input.FirstName},
		{"lastName", input.LastName},
		{"gender", input.Gender},
		{"mobileNumber", input.MobileNumber},
		{"password", input.Password},
	}
	for _, field := range required {
		if field.value == "" {
			reasons = append(reasons, field.name+" is required")
		}
	}

	if input.Email != "" && !policy.ValidEmail(input.Email) {
		reasons = append(reasons, "Email format is invalid")
	}
	if input.Password != "" {
		reasons = append(reasons, policy.ValidateStrength(input.Password).Reasons...)
	}
	if input.Gender != "" && !models.Gender(input.Gender).Valid() {
		reasons = append(reasons, "Gender must be one of Male, Female, Other")
	}
	if input.Role != "" && !models.UserRole(input.Role).Valid() {
		reasons = append(reasons, "Role must be one of Employee, Admin, Manager")
	}
	return reasons
}

type LoginInput struct {
	Email    string
	Password string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	input.Email = normalizeEmail(input.Email)
	if input.Email == "" || input.Password == "" {
		return AuthResult{}, invalid("Email and password are required")
	}
	if !policy.ValidEmail(input.Email) {
		return AuthResult{}, invalid("Invalid email format")
	}

	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	ok, err := s.hasher.Compare(user.PasswordHash, input.Password)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("stored hash unreadable")
		return AuthResult{}, ErrInvalidCredentials
	}
	if !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("record login: %w", err)
	}
	user.LastLogin = &now

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{Token: token, User: user}, nil
}

// ForgotPassword issues a single-use reset token and mails the link. Unknown
// addresses succeed silently so callers cannot probe for accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return invalid("Email is required")
	}
	if !policy.ValidEmail(email) {
		return invalid("Invalid email format")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.log.Debug().Msg("reset requested for unknown email")
			return nil
		}
		return err
	}

	token, digest, err := security.GenerateResetToken()
	if err != nil {
		return err
	}

	ttl := s.cfg.Security.ResetTokenTTL
	if err := s.users.SetResetToken(ctx, user.ID, digest, s.now().UTC().Add(ttl)); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	msg := mail.PasswordResetMessage{
		To:        user.Email,
		FirstName: user.FirstName,
		ResetURL:  strings.TrimRight(s.cfg.Mail.ClientURL, "/") + "/reset-password/" + token,
		ExpiresIn: ttl,
	}
	if err := s.mailer.SendPasswordReset(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("send reset email")
		if clearErr := s.users.ClearResetToken(ctx, user.ID); clearErr != nil {
			s.log.Error().Err(clearErr).Str("user_id", user.ID).Msg("clear reset token after failed delivery")
		}
		return fmt.Errorf("%w: %v", ErrMailDelivery, err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("password reset requested")
	return nil
}

// VerifyResetToken returns the email of the account a live token belongs to.
func (s *AuthService) VerifyResetToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", invalid("Token is required")
	}

	user, err := s.users.FindByResetToken(ctx, security.HashResetToken(token), s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrResetTokenInvalid
		}
		return "", err
	}
	return user.Email, nil
}

type ResetPasswordInput struct {
	Token    string
	Password string
}

func (s *AuthService) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	if input.Token == "" || input.Password == "" {
		return invalid("Token and new password are required")
	}
	if strength := policy.ValidateStrength(input.Password); !strength.Valid {
		return invalid("Password validation failed", strength.Reasons...)
	}

	now := s.now().UTC()
	user, err := s.users.RedeemResetToken(ctx, security.HashResetToken(input.Token), now, func(u *models.User) error {
		if policy.IsReused(input.Password, u.PasswordHistory, s.hasher) {
			return ErrPasswordReused
		}

		hash, err := s.hashPassword(input.Password, "Password validation failed")
		if err != nil {
			return err
		}
		u.PasswordHash = hash
		u.PasswordHistory = policy.PushHistory(u.PasswordHistory, models.PasswordHistoryEntry{
			Hash:      hash,
			ChangedAt: now,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}

	s.log.Info().Str("user_id", user.ID).Msg("password reset")
	return nil
}
