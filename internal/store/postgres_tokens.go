package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// CreateToken stores the sha256 of a single-use token. tokenType is TokenPasswordReset
// or TokenEmailVerification; anything else violates the tokens_token_type_check constraint.
func (s *PostgresStore) CreateToken(ctx context.Context, id, userID uuid.UUID, tokenType string, tokenHash []byte, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (id, user_id, token_type, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, userID, tokenType, tokenHash, expiresAt)
	return err
}

// ConsumeToken marks a token used and returns its owner in one statement, so two
// concurrent confirms cannot both succeed.
// Returns pgx.ErrNoRows if the token is unknown, already used, expired, or of another type.
func (s *PostgresStore) ConsumeToken(ctx context.Context, tokenHash []byte, tokenType string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		UPDATE tokens SET used_at = NOW()
		WHERE token_hash = $1 AND token_type = $2
			AND used_at IS NULL AND expires_at > NOW()
		RETURNING user_id
	`, tokenHash, tokenType).Scan(&userID)
	return userID, err
}

// SetEmailVerified flags the user's email as verified. The first verification time is kept.
// Returns pgx.ErrNoRows if no user has that id.
func (s *PostgresStore) SetEmailVerified(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET email_verified = true,
			email_verified_at = COALESCE(email_verified_at, NOW()),
			updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateUserPassword replaces the stored Argon2id hash.
// Returns pgx.ErrNoRows if no user has that id.
func (s *PostgresStore) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1", id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteExpiredTokens removes tokens that expired, or were used, more than retention ago.
func (s *PostgresStore) DeleteExpiredTokens(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM tokens WHERE expires_at < $1 OR used_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
