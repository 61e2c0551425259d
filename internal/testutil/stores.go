// stores.go
//
// Shared in-memory mocks of the Postgres store and the Redis session cache.
// Imported by test files across packages to avoid duplicate mock definitions.
package testutil

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MockStore satisfies every store interface the handler packages declare
// (auth.Store, admin.Store, search.UserStore/SearchStore/CacheStore).
// Token methods live in tokens.go.
//
// Always stateful...users, sessions, searches, cache and IP usage are maps like a real store.
// Not-found lookups return pgx.ErrNoRows and duplicate emails/usernames return a 23505
// *pgconn.PgError, matching Postgres. Use *Err fields to inject errors for specific operations.
type MockStore struct {
	// Error injection...zero value means no error
	CreateUserErr        error
	GetUserErr           error
	CreateSessionErr     error
	GetSessionErr        error
	DeleteSessionErr     error
	DeleteAllSessionsErr error
	RecordSearchErr      error
	CacheErr             error
	IPUsageErr           error
	CreateTokenErr       error
	ConsumeTokenErr      error
	UpdatePasswordErr    error
	SetEmailVerifiedErr  error

	Users    map[uuid.UUID]*store.User
	Sessions map[string]*store.Session // keyed by string(tokenHash)
	Searches []*store.SearchRecord
	Results  map[uuid.UUID][]store.BusinessResult
	Cache    map[string]*store.CacheEntry
	IPs      map[string]*store.IPUsage
	Tokens   map[string]*MockToken // keyed by string(tokenHash)

	// RecordSearchCalls counts RecordSearch invocations, successful or not.
	RecordSearchCalls int

	mu sync.Mutex
}

// NewMockStore returns a MockStore seeded with the given users.
func NewMockStore(users ...*store.User) *MockStore {
	ms := &MockStore{
		Users:    make(map[uuid.UUID]*store.User),
		Sessions: make(map[string]*store.Session),
		Results:  make(map[uuid.UUID][]store.BusinessResult),
		Cache:    make(map[string]*store.CacheEntry),
		IPs:      make(map[string]*store.IPUsage),
		Tokens:   make(map[string]*MockToken),
	}
	for _, u := range users {
		ms.Users[u.ID] = u
	}
	return ms
}

// NewUser builds a user with a fresh v7 id, role "user" and the given quota.
func NewUser(email, username string, remaining int) *store.User {
	id, _ := uuid.NewV7()
	now := time.Now()
	return &store.User{
		ID:                id,
		Email:             email,
		Username:          username,
		Role:              store.RoleUser,
		RemainingSearches: remaining,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// User returns a copy of the stored user, or nil.
func (m *MockStore) User(id uuid.UUID) *store.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// --- Users ---

func (m *MockStore) CreateUser(_ context.Context, u *store.User) error {
	if m.CreateUserErr != nil {
		return m.CreateUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.Users {
		if existing.Email == u.Email {
			return uniqueViolation("users_email_key")
		}
		if existing.Username == u.Username {
			return uniqueViolation("users_username_key")
		}
	}
	cp := *u
	cp.CreatedAt, cp.UpdatedAt = time.Now(), time.Now()
	m.Users[u.ID] = &cp
	return nil
}

func (m *MockStore) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *MockStore) GetUserByID(_ context.Context, id uuid.UUID) (*store.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	if u := m.User(id); u != nil {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *MockStore) ListUsers(_ context.Context) ([]store.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.User, 0, len(m.Users))
	for _, u := range m.Users {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b store.User) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (m *MockStore) TouchLastLogin(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.Users[id]; ok {
		now := time.Now()
		u.LastLoginAt = &now
	}
	return nil
}

func (m *MockStore) UpdateUser(_ context.Context, id uuid.UUID, upd store.UserUpdate) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if upd.RemainingSearches != nil {
		u.RemainingSearches = *upd.RemainingSearches
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.IsPremium != nil {
		u.IsPremium = *upd.IsPremium
	}
	u.UpdatedAt = time.Now()
	cp := *u
	return &cp, nil
}

func (m *MockStore) SetUserBanned(_ context.Context, id uuid.UUID, banned bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.IsBanned = banned
	if banned {
		now := time.Now()
		u.BannedAt = &now
	}
	return nil
}

// DeleteUser removes the user and cascades to sessions, searches and results.
func (m *MockStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Users[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.Users, id)
	for k, s := range m.Sessions {
		if s.UserID == id {
			delete(m.Sessions, k)
		}
	}
	m.Searches = slices.DeleteFunc(m.Searches, func(s *store.SearchRecord) bool {
		if s.UserID == id {
			delete(m.Results, s.ID)
			return true
		}
		return false
	})
	return nil
}

// --- Sessions ---

func (m *MockStore) CreateSession(_ context.Context, id uuid.UUID, userID uuid.UUID, tokenHash []byte, csrfToken []byte, expiresAt time.Time, ip *string, userAgent *string) error {
	if m.CreateSessionErr != nil {
		return m.CreateSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions[string(tokenHash)] = &store.Session{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		CSRFToken: csrfToken,
		ExpiresAt: expiresAt,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: time.Now(),
	}
	return nil
}

func (m *MockStore) GetSessionByTokenHash(_ context.Context, tokenHash []byte) (*store.Session, error) {
	if m.GetSessionErr != nil {
		return nil, m.GetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[string(tokenHash)]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

func (m *MockStore) DeleteSession(_ context.Context, tokenHash []byte) error {
	if m.DeleteSessionErr != nil {
		return m.DeleteSessionErr
	}
	m.mu.Lock()
	delete(m.Sessions, string(tokenHash))
	m.mu.Unlock()
	return nil
}

func (m *MockStore) DeleteAllUserSessions(_ context.Context, userID uuid.UUID) error {
	if m.DeleteAllSessionsErr != nil {
		return m.DeleteAllSessionsErr
	}
	m.mu.Lock()
	for key, s := range m.Sessions {
		if s.UserID == userID {
			delete(m.Sessions, key)
		}
	}
	m.mu.Unlock()
	return nil
}

// --- Searches ---

// RecordSearch mirrors the Postgres transaction: the quota check-and-decrement and the
// inserts happen under one lock, so concurrent callers can never overdraw.
func (m *MockStore) RecordSearch(_ context.Context, rec *store.SearchRecord, results []store.BusinessResult, chargeQuota bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordSearchCalls++
	if m.RecordSearchErr != nil {
		return 0, m.RecordSearchErr
	}

	u, ok := m.Users[rec.UserID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	if chargeQuota {
		if u.RemainingSearches <= 0 {
			return 0, store.ErrQuotaExhausted
		}
		u.RemainingSearches--
	}
	now := time.Now()
	u.LastSearchAt = &now

	rec.ResultsCount = len(results)
	rec.CreatedAt = now
	cp := *rec
	cp.Username = u.Username
	m.Searches = append(m.Searches, &cp)
	m.Results[rec.ID] = slices.Clone(results)
	return u.RemainingSearches, nil
}

func (m *MockStore) listSearches(filter func(*store.SearchRecord) bool, limit int) []store.SearchRecord {
	out := []store.SearchRecord{}
	for i := len(m.Searches) - 1; i >= 0; i-- {
		if filter(m.Searches[i]) {
			out = append(out, *m.Searches[i])
		}
	}
	if limit <= 0 || limit > store.MaxSearchListLimit {
		limit = store.MaxSearchListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MockStore) ListSearches(_ context.Context, limit int) ([]store.SearchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listSearches(func(*store.SearchRecord) bool { return true }, limit), nil
}

func (m *MockStore) ListUserSearches(_ context.Context, userID uuid.UUID, limit int) ([]store.SearchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listSearches(func(s *store.SearchRecord) bool { return s.UserID == userID }, limit), nil
}

func (m *MockStore) GetSearchResults(_ context.Context, searchID uuid.UUID) ([]store.BusinessResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.Results[searchID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return slices.Clone(res), nil
}

// GetStats computes the dashboard from the in-memory rows.
func (m *MockStore) GetStats(_ context.Context, since time.Time) (*store.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := &store.Stats{TotalUsers: len(m.Users), TotalSearches: len(m.Searches)}
	activeSince := since.AddDate(0, 0, -30)
	for _, u := range m.Users {
		if u.IsBanned {
			st.BannedUsers++
		}
		if u.LastSearchAt != nil && !u.LastSearchAt.Before(activeSince) {
			st.ActiveUsers++
		}
	}
	types, cities := map[string]int{}, map[string]int{}
	for _, s := range m.Searches {
		if !s.CreatedAt.Before(since) {
			st.SearchesToday++
		}
		types[s.BusinessType]++
		cities[s.City]++
	}
	st.TopTypes = topCounts(types)
	st.TopCities = topCounts(cities)
	st.RecentSearches = m.listSearches(func(*store.SearchRecord) bool { return true }, 10)
	return st, nil
}

func topCounts(counts map[string]int) []store.CountEntry {
	out := []store.CountEntry{}
	for label, n := range counts {
		out = append(out, store.CountEntry{Label: label, Count: n})
	}
	slices.SortFunc(out, func(a, b store.CountEntry) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return out
}

// --- Cache ---

func (m *MockStore) GetCacheEntry(_ context.Context, key string) (*store.CacheEntry, error) {
	if m.CacheErr != nil {
		return nil, m.CacheErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Cache[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (m *MockStore) PutCacheEntry(_ context.Context, key string, payload []byte, createdAt time.Time) error {
	if m.CacheErr != nil {
		return m.CacheErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cache[key] = &store.CacheEntry{Key: key, Payload: slices.Clone(payload), CreatedAt: createdAt}
	return nil
}

// --- IP usage ---

func (m *MockStore) GetIPUsage(_ context.Context, ip string) (*store.IPUsage, error) {
	if m.IPUsageErr != nil {
		return nil, m.IPUsageErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.IPs[ip]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (m *MockStore) RecordAccountCreation(_ context.Context, ip string) error {
	if m.IPUsageErr != nil {
		return m.IPUsageErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	u, ok := m.IPs[ip]
	if !ok {
		u = &store.IPUsage{IPAddress: ip, FirstSeen: now}
		m.IPs[ip] = u
	}
	u.AccountCount++
	u.LastSeen = now
	return nil
}

func (m *MockStore) ListIPUsage(_ context.Context) ([]store.IPUsage, error) {
	if m.IPUsageErr != nil {
		return nil, m.IPUsageErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.IPUsage, 0, len(m.IPs))
	for _, u := range m.IPs {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b store.IPUsage) int {
		if c := cmp.Compare(b.AccountCount, a.AccountCount); c != 0 {
			return c
		}
		return cmp.Compare(a.IPAddress, b.IPAddress)
	})
	return out, nil
}

func (m *MockStore) SetIPBlocked(_ context.Context, ip string, blocked bool) error {
	if m.IPUsageErr != nil {
		return m.IPUsageErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.IPs[ip]
	if !ok {
		now := time.Now()
		u = &store.IPUsage{IPAddress: ip, FirstSeen: now, LastSeen: now}
		m.IPs[ip] = u
	}
	u.IsBlocked = blocked
	return nil
}

// MockCache implements auth.SessionCache for tests.
// Always stateful...Sessions is a map, like a real cache.
// Use *Err fields to inject errors for specific operations.
type MockCache struct {
	// Error injection...zero value means no error
	GetSessionErr        error
	SetSessionErr        error
	DeleteSessionErr     error
	DeleteAllSessionsErr error

	Sessions map[string]*store.CachedSession // keyed by hex token hash

	mu sync.Mutex
}

// NewMockCache returns an empty MockCache ready for use.
func NewMockCache() *MockCache {
	return &MockCache{
		Sessions: make(map[string]*store.CachedSession),
	}
}

func (m *MockCache) GetSession(_ context.Context, tokenHash string) (*store.CachedSession, error) {
	if m.GetSessionErr != nil {
		return nil, m.GetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[tokenHash]
	if !ok {
		return nil, store.ErrCacheMiss
	}
	return s, nil
}

func (m *MockCache) SetSession(_ context.Context, tokenHash string, sess store.Session, ttl time.Duration) error {
	if m.SetSessionErr != nil {
		return m.SetSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions[tokenHash] = &store.CachedSession{
		UserID:    sess.UserID,
		CSRFToken: sess.CSRFToken,
		ExpiresAt: sess.ExpiresAt,
	}
	return nil
}

func (m *MockCache) DeleteSession(_ context.Context, tokenHash string, userID uuid.UUID) error {
	if m.DeleteSessionErr != nil {
		return m.DeleteSessionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Sessions, tokenHash)
	return nil
}

func (m *MockCache) DeleteAllUserSessions(_ context.Context, userID uuid.UUID) error {
	if m.DeleteAllSessionsErr != nil {
		return m.DeleteAllSessionsErr
	}
	m.mu.Lock()
	for key, s := range m.Sessions {
		if s.UserID == userID {
			delete(m.Sessions, key)
		}
	}
	m.mu.Unlock()
	return nil
}
