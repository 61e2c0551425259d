// postgres_search.go -- search history, persisted results, quota charging, dashboard stats.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// MaxSearchListLimit caps the number of search rows returned by one listing query.
const MaxSearchListLimit = 500

// RecordSearch persists a completed search and its results in one transaction.
//
// When chargeQuota is true the user's remaining_searches is decremented first, guarded
// by remaining_searches > 0. The row lock taken by that UPDATE serializes concurrent
// searches of the same user; the loser of the race sees zero rows and gets
// ErrQuotaExhausted, and nothing is written.
//
// rec.ResultsCount and rec.CreatedAt are filled in. Returns the user's remaining searches
// after the charge.
func (s *PostgresStore) RecordSearch(ctx context.Context, rec *SearchRecord, results []BusinessResult, chargeQuota bool) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	var remaining int
	if chargeQuota {
		err = tx.QueryRow(ctx, `
			UPDATE users
			SET remaining_searches = remaining_searches - 1, last_search_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND remaining_searches > 0
			RETURNING remaining_searches`, rec.UserID).Scan(&remaining)
	} else {
		err = tx.QueryRow(ctx, `
			UPDATE users SET last_search_at = NOW()
			WHERE id = $1
			RETURNING remaining_searches`, rec.UserID).Scan(&remaining)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if chargeQuota {
			return 0, ErrQuotaExhausted
		}
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("charging quota: %w", err)
	}

	rec.ResultsCount = len(results)
	err = tx.QueryRow(ctx, `
		INSERT INTO searches (id, user_id, city, business_type, radius_km, results_count, center_lat, center_lng, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		rec.ID, rec.UserID, rec.City, rec.BusinessType, rec.RadiusKm, rec.ResultsCount,
		rec.CenterLat, rec.CenterLng, rec.IPAddress).Scan(&rec.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("inserting search: %w", err)
	}

	if len(results) > 0 {
		rows := make([][]any, len(results))
		for i, r := range results {
			rows[i] = []any{
				rec.ID, i, r.PlaceID, r.Name, r.Address, r.Rating, r.TotalReviews,
				r.Lat, r.Lng, r.Phone, r.Website, r.OperationalStatus, r.DistanceKm,
			}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"search_results"},
			[]string{"search_id", "position", "place_id", "name", "address", "rating", "total_reviews",
				"lat", "lng", "phone", "website", "operational_status", "distance_km"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting search results: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing search: %w", err)
	}
	return remaining, nil
}

const searchColumns = `s.id, s.user_id, u.username, s.city, s.business_type, s.radius_km,
	s.results_count, s.center_lat, s.center_lng, s.ip_address, s.created_at`

func scanSearches(rows pgx.Rows) ([]SearchRecord, error) {
	defer rows.Close()
	out := []SearchRecord{}
	for rows.Next() {
		var r SearchRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Username, &r.City, &r.BusinessType, &r.RadiusKm,
			&r.ResultsCount, &r.CenterLat, &r.CenterLng, &r.IPAddress, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning search: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxSearchListLimit {
		return MaxSearchListLimit
	}
	return limit
}

// ListSearches returns the most recent searches across all users, newest first.
// limit is clamped to (0, MaxSearchListLimit].
func (s *PostgresStore) ListSearches(ctx context.Context, limit int) ([]SearchRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+searchColumns+`
		FROM searches s JOIN users u ON u.id = s.user_id
		ORDER BY s.created_at DESC
		LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing searches: %w", err)
	}
	return scanSearches(rows)
}

// ListUserSearches returns one user's searches, newest first.
func (s *PostgresStore) ListUserSearches(ctx context.Context, userID uuid.UUID, limit int) ([]SearchRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+searchColumns+`
		FROM searches s JOIN users u ON u.id = s.user_id
		WHERE s.user_id = $1
		ORDER BY s.created_at DESC
		LIMIT $2`, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing user searches: %w", err)
	}
	return scanSearches(rows)
}

// GetSearchResults returns the persisted results of one search in stored order.
// Returns pgx.ErrNoRows if the search does not exist.
func (s *PostgresStore) GetSearchResults(ctx context.Context, searchID uuid.UUID) ([]BusinessResult, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM searches WHERE id = $1)", searchID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking search: %w", err)
	}
	if !exists {
		return nil, pgx.ErrNoRows
	}

	rows, err := s.pool.Query(ctx, `
		SELECT place_id, name, address, rating, total_reviews, lat, lng, phone, website,
			operational_status, distance_km
		FROM search_results
		WHERE search_id = $1
		ORDER BY position`, searchID)
	if err != nil {
		return nil, fmt.Errorf("listing search results: %w", err)
	}
	defer rows.Close()

	out := []BusinessResult{}
	for rows.Next() {
		var r BusinessResult
		if err := rows.Scan(&r.PlaceID, &r.Name, &r.Address, &r.Rating, &r.TotalReviews, &r.Lat, &r.Lng,
			&r.Phone, &r.Website, &r.OperationalStatus, &r.DistanceKm); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// statsTopN is the number of entries in each dashboard breakdown.
const statsTopN = 10

// statsRecent is the number of recent searches on the dashboard.
const statsRecent = 10

// GetStats aggregates the admin dashboard. since marks the start of "today";
// active users are those who searched within the 30 days before since.
func (s *PostgresStore) GetStats(ctx context.Context, since time.Time) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM searches),
			(SELECT COUNT(*) FROM searches WHERE created_at >= $1),
			(SELECT COUNT(*) FROM users WHERE is_banned),
			(SELECT COUNT(*) FROM users WHERE last_search_at >= $2)`,
		since, since.AddDate(0, 0, -30)).Scan(
		&st.TotalUsers, &st.TotalSearches, &st.SearchesToday, &st.BannedUsers, &st.ActiveUsers)
	if err != nil {
		return nil, fmt.Errorf("counting totals: %w", err)
	}

	if st.TopTypes, err = s.topCounts(ctx, "business_type"); err != nil {
		return nil, err
	}
	if st.TopCities, err = s.topCounts(ctx, "lower(city)"); err != nil {
		return nil, err
	}
	if st.RecentSearches, err = s.ListSearches(ctx, statsRecent); err != nil {
		return nil, err
	}
	return &st, nil
}

// topCounts groups searches by expr. expr is always a package constant, never caller input.
func (s *PostgresStore) topCounts(ctx context.Context, expr string) ([]CountEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+expr+` AS label, COUNT(*) AS n
		FROM searches
		GROUP BY label
		ORDER BY n DESC, label
		LIMIT $1`, statsTopN)
	if err != nil {
		return nil, fmt.Errorf("grouping searches by %s: %w", expr, err)
	}
	defer rows.Close()

	out := []CountEntry{}
	for rows.Next() {
		var c CountEntry
		if err := rows.Scan(&c.Label, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
