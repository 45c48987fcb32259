package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"userhub/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

const uniqueViolation = "23505"

const userColumns = `
	id, email, first_name, last_name, gender, mobile_number, city, role,
	password_hash, password_history, reset_token_hash, reset_token_expiry,
	last_login, created_at, updated_at
`

type userRow struct {
	ID               string     `db:"id"`
	Email            string     `db:"email"`
	FirstName        string     `db:"first_name"`
	LastName         string     `db:"last_name"`
	Gender           string     `db:"gender"`
	MobileNumber     string     `db:"mobile_number"`
	City             string     `db:"city"`
	Role             string     `db:"role"`
	PasswordHash     string     `db:"password_hash"`
	PasswordHistory  []byte     `db:"password_history"`
	ResetTokenHash   *string    `db:"reset_token_hash"`
	ResetTokenExpiry *time.Time `db:"reset_token_expiry"`
	LastLogin        *time.Time `db:"last_login"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func (r userRow) toModel() (models.User, error) {
	var history []models.PasswordHistoryEntry
	if len(r.PasswordHistory) > 0 {
		if err := json.Unmarshal(r.PasswordHistory, &history); err != nil {
			return models.User{}, fmt.Errorf("decode password history for %s: %w", r.ID, err)
		}
	}
	return models.User{
		ID:               r.ID,
		Email:            r.Email,
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		Gender:           models.Gender(r.Gender),
		MobileNumber:     r.MobileNumber,
		City:             r.City,
		Role:             models.UserRole(r.Role),
		PasswordHash:     r.PasswordHash,
		PasswordHistory:  history,
		ResetTokenHash:   r.ResetTokenHash,
		ResetTokenExpiry: r.ResetTokenExpiry,
		LastLogin:        r.LastLogin,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}, nil
}

func encodeHistory(history []models.PasswordHistoryEntry) ([]byte, error) {
	if history == nil {
		history = []models.PasswordHistoryEntry{}
	}
	return json.Marshal(history)
}

// UserRepository is the Postgres-backed credential store.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) (models.User, error) {
	const query = `
		INSERT INTO users (
			id, email, first_name, last_name, gender, mobile_number, city, role,
			password_hash, password_history, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW()
		)
		RETURNING ` + userColumns

	history, err := encodeHistory(user.PasswordHistory)
	if err != nil {
		return models.User{}, err
	}

	var row userRow
	err = pgxscan.Get(ctx, r.pool, &row, query,
		user.ID,
		user.Email,
		user.FirstName,
		user.LastName,
		string(user.Gender),
		user.MobileNumber,
		user.City,
		string(user.Role),
		user.PasswordHash,
		history,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return row.toModel()
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	return r.getOne(ctx, r.pool, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.getOne(ctx, r.pool, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindByResetToken returns the user whose reset digest matches and has not expired.
func (r *UserRepository) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (models.User, error) {
	const query = `SELECT ` + userColumns + `
		FROM users
		WHERE reset_token_hash = $1 AND reset_token_expiry > $2`
	return r.getOne(ctx, r.pool, query, tokenHash, now)
}

func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	var rows []userRow
	if err := pgxscan.Select(ctx, r.pool, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]models.User, 0, len(rows))
	for _, row := range rows {
		u, err := row.toModel()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (r *UserRepository) Update(ctx context.Context, id string, patch models.ProfilePatch) (models.User, error) {
	const query = `
		UPDATE users SET
			email = COALESCE($2, email),
			first_name = COALESCE($3, first_name),
			last_name = COALESCE($4, last_name),
			gender = COALESCE($5, gender),
			mobile_number = COALESCE($6, mobile_number),
			city = COALESCE($7, city),
			role = COALESCE($8, role),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	var gender, role *string
	if patch.Gender != nil {
		g := string(*patch.Gender)
		gender = &g
	}
	if patch.Role != nil {
		ro := string(*patch.Role)
		role = &ro
	}

	user, err := r.getOne(ctx, r.pool, query,
		id,
		patch.Email,
		patch.FirstName,
		patch.LastName,
		gender,
		patch.MobileNumber,
		patch.City,
		role,
	)
	if isUniqueViolation(err) {
		return models.User{}, ErrEmailTaken
	}
	return user, err
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, at)
}

func (r *UserRepository) SetResetToken(ctx context.Context, id string, tokenHash string, expiry time.Time) error {
	const query = `
		UPDATE users
		SET reset_token_hash = $2, reset_token_expiry = $3, updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, tokenHash, expiry)
}

func (r *UserRepository) ClearResetToken(ctx context.Context, id string) error {
	const query = `
		UPDATE users
		SET reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id)
}

// RedeemResetToken locks the row holding a live token, lets apply change the
// credentials and persists them with the token cleared. An error from apply
// rolls back and leaves the token usable.
func (r *UserRepository) RedeemResetToken(ctx context.Context, tokenHash string, now time.Time, apply func(*models.User) error) (models.User, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.User{}, fmt.Errorf("begin redeem: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const selectQuery = `SELECT ` + userColumns + `
		FROM users
		WHERE reset_token_hash = $1 AND reset_token_expiry > $2
		FOR UPDATE`
	user, err := r.getOne(ctx, tx, selectQuery, tokenHash, now)
	if err != nil {
		return models.User{}, err
	}

	if err := apply(&user); err != nil {
		return models.User{}, err
	}

	history, err := encodeHistory(user.PasswordHistory)
	if err != nil {
		return models.User{}, err
	}

	const updateQuery = `
		UPDATE users
		SET password_hash = $2,
		    password_history = $3,
		    reset_token_hash = NULL,
		    reset_token_expiry = NULL,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	updated, err := r.getOne(ctx, tx, updateQuery, user.ID, user.PasswordHash, history)
	if err != nil {
		return models.User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.User{}, fmt.Errorf("commit redeem: %w", err)
	}
	return updated, nil
}

// ClearExpiredResetTokens nulls every reset token whose window closed before now.
func (r *UserRepository) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE users
		SET reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = NOW()
		WHERE reset_token_expiry IS NOT NULL AND reset_token_expiry <= $1
	`
	cmd, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("clear expired reset tokens: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *UserRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *UserRepository) getOne(ctx context.Context, q pgxscan.Querier, query string, args ...any) (models.User, error) {
	var row userRow
	if err := pgxscan.Get(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return row.toModel()
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
