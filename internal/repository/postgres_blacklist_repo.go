package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresBlacklist implements domain.TokenBlacklist on the token_blacklist
// table (token_jti unique, expires_at). Rows past their expiry are inert
// because every lookup filters on expires_at > now(); PurgeExpired only keeps
// the table from growing without bound.
type PostgresBlacklist struct {
	db *sql.DB
}

func NewPostgresBlacklist(db *sql.DB) *PostgresBlacklist {
	return &PostgresBlacklist{db: db}
}

// Revoke records a token identifier until its expiry. Revoking the same jti
// twice is a no-op, which makes concurrent or retried logout calls safe.
func (r *PostgresBlacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO token_blacklist (token_jti, expires_at) VALUES ($1, $2)
		 ON CONFLICT (token_jti) DO NOTHING`,
		jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke token %s: %w", jti, err)
	}
	return nil
}

// IsRevoked reports whether jti has an unexpired blacklist entry.
func (r *PostgresBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM token_blacklist WHERE token_jti = $1 AND expires_at > NOW()`,
		jti).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return true, nil
}

// PurgeExpired deletes entries whose tokens have expired on their own.
func (r *PostgresBlacklist) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM token_blacklist WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge blacklist: %w", err)
	}
	return result.RowsAffected()
}
