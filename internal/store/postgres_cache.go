// postgres_cache.go -- search result cache and IP usage tracking.
package store

import (
	"context"
	"fmt"
	"time"
)

// GetCacheEntry fetches a cached search payload. Returns pgx.ErrNoRows on miss.
// Freshness is the caller's decision; stale rows are returned as-is.
func (s *PostgresStore) GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error) {
	var e CacheEntry
	err := s.pool.QueryRow(ctx,
		"SELECT cache_key, payload, created_at FROM search_cache WHERE cache_key = $1", key).Scan(
		&e.Key, &e.Payload, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PutCacheEntry stores or replaces the payload for key.
func (s *PostgresStore) PutCacheEntry(ctx context.Context, key string, payload []byte, createdAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO search_cache (cache_key, payload, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at`,
		key, string(payload), createdAt)
	return err
}

// DeleteStaleCacheEntries removes entries created more than retention ago.
func (s *PostgresStore) DeleteStaleCacheEntries(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM search_cache WHERE created_at < $1", time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("sweeping search cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetIPUsage fetches the usage row for ip. Returns pgx.ErrNoRows if the address was never seen.
func (s *PostgresStore) GetIPUsage(ctx context.Context, ip string) (*IPUsage, error) {
	var u IPUsage
	err := s.pool.QueryRow(ctx, `
		SELECT ip_address, account_count, first_seen, last_seen, is_blocked
		FROM ip_usage WHERE ip_address = $1`, ip).Scan(
		&u.IPAddress, &u.AccountCount, &u.FirstSeen, &u.LastSeen, &u.IsBlocked)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// RecordAccountCreation bumps the account counter for ip, creating the row on first sight.
func (s *PostgresStore) RecordAccountCreation(ctx context.Context, ip string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ip_usage (ip_address, account_count)
		VALUES ($1, 1)
		ON CONFLICT (ip_address) DO UPDATE
		SET account_count = ip_usage.account_count + 1, last_seen = NOW()`, ip)
	return err
}

// ListIPUsage returns every tracked address, most accounts first.
func (s *PostgresStore) ListIPUsage(ctx context.Context) ([]IPUsage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ip_address, account_count, first_seen, last_seen, is_blocked
		FROM ip_usage
		ORDER BY account_count DESC, last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing ip usage: %w", err)
	}
	defer rows.Close()

	out := []IPUsage{}
	for rows.Next() {
		var u IPUsage
		if err := rows.Scan(&u.IPAddress, &u.AccountCount, &u.FirstSeen, &u.LastSeen, &u.IsBlocked); err != nil {
			return nil, fmt.Errorf("scanning ip usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetIPBlocked blocks or unblocks ip. Blocking an unseen address creates its row.
func (s *PostgresStore) SetIPBlocked(ctx context.Context, ip string, blocked bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ip_usage (ip_address, is_blocked)
		VALUES ($1, $2)
		ON CONFLICT (ip_address) DO UPDATE SET is_blocked = EXCLUDED.is_blocked`, ip, blocked)
	return err
}
