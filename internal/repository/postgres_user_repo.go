package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vpscenter/authd/internal/domain"
)

// PostgresUserRepo implements domain.UserRepository on the users table:
// id, email (unique), password_hash, role, totp_enabled, totp_secret
// (nullable), last_login (nullable), created_at.
type PostgresUserRepo struct {
	db *sql.DB
}

func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, password_hash, role, totp_enabled, COALESCE(totp_secret, ''), last_login, created_at`

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		user      domain.User
		role      string
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.TOTPEnabled,
		&user.TOTPSecret,
		&lastLogin,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.Role = domain.ParseRole(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return &user, nil
}

// GetByEmail retrieves a user by exact email. Callers are expected to have
// lowercased the address already (emails are stored normalized).
func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// List returns all users ordered by creation time. Used by the admin surface.
func (r *PostgresUserRepo) List(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		var (
			user      domain.User
			role      string
			lastLogin sql.NullTime
		)
		if err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.PasswordHash,
			&role,
			&user.TOTPEnabled,
			&user.TOTPSecret,
			&lastLogin,
			&user.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		user.Role = domain.ParseRole(role)
		if lastLogin.Valid {
			t := lastLogin.Time
			user.LastLogin = &t
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

// Create inserts a new user. Only the startup bootstrap uses this; general
// provisioning is outside this service.
func (r *PostgresUserRepo) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (email, password_hash, role, totp_enabled, totp_secret, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	user.CreatedAt = time.Now().UTC()

	err := r.db.QueryRowContext(ctx, query,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.TOTPEnabled,
		nullIfEmpty(user.TOTPSecret),
		user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, id)
	return err
}

// UpdateTOTP stores the enrollment state atomically: secret and flag always
// change together, so a disabled account never keeps a live secret around
// except during the explicit setup window.
func (r *PostgresUserRepo) UpdateTOTP(ctx context.Context, id string, enabled bool, secret string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET totp_enabled = $1, totp_secret = $2 WHERE id = $3`,
		enabled, nullIfEmpty(secret), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}
