// Package store handles all database and cache interactions.
//
// postgres.go -- pgxpool connection setup, user and session queries.
// postgres_tokens.go holds the single-use reset and verification tokens.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable store: users, sessions, searches, result cache, IP usage.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool to PostgreSQL, pings it, and returns a ready-to-use store.
// Call once at startup from main.go...the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	// Ping db to make sure connection works
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool and releases all resources.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Stat returns a snapshot of the pool for the metrics collector.
func (s *PostgresStore) Stat() *pgxpool.Stat {
	return s.pool.Stat()
}

// CheckHealth pings Postgres; used by GET /health.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// userColumns is the canonical SELECT list for scanUser.
const userColumns = `id, email, username, password_hash, role, email_verified, email_verified_at, remaining_searches,
	is_premium, is_banned, banned_at, host(registration_ip), last_login_at, last_search_at,
	created_at, updated_at`

// scanUser reads one users row selected with userColumns.
func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.EmailVerified, &u.EmailVerifiedAt, &u.RemainingSearches,
		&u.IsPremium, &u.IsBanned, &u.BannedAt, &u.RegistrationIP, &u.LastLoginAt, &u.LastSearchAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user profile.
// The caller generates the UUID v7 and Argon2id hash BEFORE calling this.
// Returns raw pgx error, handler inspects it for unique violations (email, username).
func (s *PostgresStore) CreateUser(ctx context.Context, u *User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, username, password_hash, role, remaining_searches, registration_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.Role, u.RemainingSearches, u.RegistrationIP)
	return err
}

// GetUserByEmail fetches a user by email. Returns pgx.ErrNoRows if not found.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", email))
}

// GetUserByID fetches a user by id. Returns pgx.ErrNoRows if not found.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

// ListUsers returns every user, newest registration first.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// TouchLastLogin sets last_login_at = NOW() for the user.
func (s *PostgresStore) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, "UPDATE users SET last_login_at = NOW() WHERE id = $1", id)
	return err
}

// UpdateUser applies the non-nil fields of upd and returns the updated row.
// Returns pgx.ErrNoRows if no user has that id.
func (s *PostgresStore) UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET
			remaining_searches = COALESCE($2, remaining_searches),
			role               = COALESCE($3, role),
			is_premium         = COALESCE($4, is_premium),
			updated_at         = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		id, upd.RemainingSearches, upd.Role, upd.IsPremium))
}

// SetUserBanned sets or clears the ban flag. banned_at records the latest ban.
// Returns pgx.ErrNoRows if no user has that id.
func (s *PostgresStore) SetUserBanned(ctx context.Context, id uuid.UUID, banned bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET
			is_banned  = $2,
			banned_at  = CASE WHEN $2 THEN NOW() ELSE banned_at END,
			updated_at = NOW()
		WHERE id = $1`, id, banned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteUser removes the user; sessions, searches and their results cascade.
// Returns pgx.ErrNoRows if no user has that id.
func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CreateSession inserts a new session row.
// ip and userAgent are nullable.
func (s *PostgresStore) CreateSession(ctx context.Context, id uuid.UUID, userID uuid.UUID, tokenHash []byte, csrfToken []byte, expiresAt time.Time, ip *string, userAgent *string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, csrf_token, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, userID, tokenHash, csrfToken, expiresAt, ip, userAgent)
	return err
}

// GetSessionByTokenHash fetches a non-expired session by token hash.
// Returns pgx.ErrNoRows if not found or expired.
func (s *PostgresStore) GetSessionByTokenHash(ctx context.Context, tokenHash []byte) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, csrf_token, expires_at, host(ip_address), user_agent, created_at
		FROM sessions
		WHERE token_hash = $1 AND expires_at > NOW()`, tokenHash).Scan(
		&sess.ID, &sess.UserID, &sess.TokenHash, &sess.CSRFToken, &sess.ExpiresAt,
		&sess.IPAddress, &sess.UserAgent, &sess.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// DeleteSession removes a single session row by token hash.
func (s *PostgresStore) DeleteSession(ctx context.Context, tokenHash []byte) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE token_hash = $1", tokenHash)
	return err
}

// DeleteAllUserSessions removes every session for a user.
func (s *PostgresStore) DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE user_id = $1", userID)
	return err
}

// CleanupExpiredSessions deletes sessions that expired more than retention ago.
// Returns the number of rows deleted.
func (s *PostgresStore) CleanupExpiredSessions(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM sessions WHERE expires_at < $1", time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("cleaning up sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
