// quota.go -- per-user trial quota gate.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/metrics"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/web"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserStore looks up users. Satisfied by *store.PostgresStore.
type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*store.User, error)
}

// SearchStore persists searches. Satisfied by *store.PostgresStore.
type SearchStore interface {
	// RecordSearch writes the search and its results and, when chargeQuota is set,
	// decrements the user's quota, all in one transaction. Returns store.ErrQuotaExhausted
	// if the quota hit zero in the meantime.
	RecordSearch(ctx context.Context, rec *store.SearchRecord, results []store.BusinessResult, chargeQuota bool) (int, error)
	ListUserSearches(ctx context.Context, userID uuid.UUID, limit int) ([]store.SearchRecord, error)
}

var errExhausted = &Error{
	Code:    web.CodeResourceExhausted,
	Reason:  ReasonExhausted,
	Message: "No remaining searches. Please upgrade your account.",
}

// QuotaGate decides whether a user may search and charges completed searches.
type QuotaGate struct {
	users    UserStore
	searches SearchStore
}

// NewQuotaGate returns a gate over the given stores.
func NewQuotaGate(users UserStore, searches SearchStore) *QuotaGate {
	return &QuotaGate{users: users, searches: searches}
}

// CheckAndReserve loads the user and refuses banned users first, then users with no
// searches left who hold no premium entitlement. Nothing is charged here.
func (g *QuotaGate) CheckAndReserve(ctx context.Context, userID uuid.UUID) (*store.User, error) {
	u, err := g.users.GetUserByID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &Error{Code: web.CodeNotFound, Message: "User not found."}
	}
	if err != nil {
		return nil, internal(fmt.Errorf("loading user: %w", err))
	}

	if u.IsBanned {
		return nil, &Error{
			Code:    web.CodePermissionDenied,
			Reason:  ReasonBanned,
			Message: "Your account has been suspended.",
		}
	}
	if !u.IsPremium && u.RemainingSearches <= 0 {
		metrics.QuotaExhausted.Inc()
		return nil, errExhausted
	}
	return u, nil
}

// Commit persists the search and charges exactly one search to non-premium users,
// atomically. Returns the user's remaining searches afterwards.
func (g *QuotaGate) Commit(ctx context.Context, u *store.User, rec *store.SearchRecord, results []store.BusinessResult) (int, error) {
	remaining, err := g.searches.RecordSearch(ctx, rec, results, !u.IsPremium)
	if errors.Is(err, store.ErrQuotaExhausted) {
		metrics.QuotaExhausted.Inc()
		return 0, errExhausted
	}
	if err != nil {
		return 0, internal(fmt.Errorf("recording search: %w", err))
	}
	return remaining, nil
}
