package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound indicates the user id or email does not resolve.
var ErrUserNotFound = errors.New("user not found")

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByID(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	UpdateTokenVersion(ctx context.Context, id string, version int) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetTwoFactor(ctx context.Context, id string, enabled bool) error
}

// PostgresRepository stores users in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, first_name, last_name, document_type, document_number, password_hash, two_factor_enabled, token_version, created_at, last_login`

// Create inserts a user record.
func (r *PostgresRepository) Create(ctx context.Context, u User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.DocumentType, u.DocumentNumber,
		u.PasswordHash, u.TwoFactorEnabled, u.TokenVersion, u.CreatedAt.UTC(), u.LastLogin.UTC())
	return err
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindByEmail fetches a user by email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// UpdateTokenVersion bumps the token version, invalidating outstanding tokens.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string, version int) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET token_version = $1 WHERE id = $2`, version, id)
	return err
}

// UpdateLastLogin stamps the last successful authentication.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at.UTC(), id)
	return err
}

// SetTwoFactor toggles the user's 2FA requirement.
func (r *PostgresRepository) SetTwoFactor(ctx context.Context, id string, enabled bool) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET two_factor_enabled = $1 WHERE id = $2`, enabled, id)
	return err
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var createdAt, lastLogin time.Time
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.DocumentType, &u.DocumentNumber,
		&u.PasswordHash, &u.TwoFactorEnabled, &u.TokenVersion, &createdAt, &lastLogin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	u.CreatedAt = createdAt.UTC()
	u.LastLogin = lastLogin.UTC()
	return u, nil
}
