// handler.go -- HTTP handlers for account and session endpoints.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/mail"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/web"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SessionCache defines session cache operations needed by auth handlers.
// Satisfied by *store.RedisStore.
type SessionCache interface {
	// GetSession retrieves cached session by token hash. Returns store.ErrCacheMiss if absent.
	GetSession(ctx context.Context, tokenHash string) (*store.CachedSession, error)

	// SetSession caches session for ttl.
	SetSession(ctx context.Context, tokenHash string, sess store.Session, ttl time.Duration) error

	// DeleteSession removes session and its entry in the user tracking set.
	DeleteSession(ctx context.Context, tokenHash string, userID uuid.UUID) error

	// DeleteAllUserSessions removes all cached sessions for a user.
	DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error
}

// Store defines database operations needed by auth handlers.
// Satisfied by *store.PostgresStore.
type Store interface {
	CreateUser(ctx context.Context, u *store.User) error
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*store.User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID) error

	// DeleteUser removes the user; sessions, searches and results cascade.
	DeleteUser(ctx context.Context, id uuid.UUID) error

	CreateSession(ctx context.Context, id uuid.UUID, userID uuid.UUID, tokenHash []byte, csrfToken []byte, expiresAt time.Time, ip *string, userAgent *string) error

	// GetSessionByTokenHash fetches valid (non-expired) session by token hash.
	// Returns pgx.ErrNoRows if not found or expired.
	GetSessionByTokenHash(ctx context.Context, tokenHash []byte) (*store.Session, error)
	DeleteSession(ctx context.Context, tokenHash []byte) error
	DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error

	// GetIPUsage returns pgx.ErrNoRows for an address never seen.
	GetIPUsage(ctx context.Context, ip string) (*store.IPUsage, error)
	RecordAccountCreation(ctx context.Context, ip string) error

	CreateToken(ctx context.Context, id, userID uuid.UUID, tokenType string, tokenHash []byte, expiresAt time.Time) error
	// ConsumeToken returns pgx.ErrNoRows if the token is unknown, used or expired.
	ConsumeToken(ctx context.Context, tokenHash []byte, tokenType string) (uuid.UUID, error)
	SetEmailVerified(ctx context.Context, id uuid.UUID) error
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// RateLimiter checks and records rate limit state for a given key and policy.
// Satisfied by *store.RateLimiter.
type RateLimiter interface {
	// Allow records the attempt if within policy. Returns store.ErrRateLimitExceeded otherwise.
	Allow(ctx context.Context, key string, policy store.RateLimit) error
}

// dummyPasswordHash is a precomputed Argon2id hash for timing attack mitigation.
// When a user doesn't exist, verify against this so both paths take equal time.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=3,p=2$YWJjZGVmZ2hpamtsbW5vcA$kC6C6jqLzC0JLlJgXhHbKMhLLpVvLJLLQw/IqT9ZYPU"

const (
	// DefaultTrialSearches is the quota granted to a new account.
	DefaultTrialSearches = 3
	// DefaultSessionTTL is the session lifetime without rememberMe.
	DefaultSessionTTL = 24 * time.Hour
	rememberMeTTL     = 30 * 24 * time.Hour

	resetTokenTTL  = time.Hour
	verifyTokenTTL = 24 * time.Hour

	maxAuthBody = 4 << 10
)

// DefaultLoginEmailPolicy is applied per email address before any DB work,
// so rejected requests never reach Argon2id.
var DefaultLoginEmailPolicy = store.RateLimit{
	MaxAttempts: 10,
	Window:      10 * time.Minute,
}

// DefaultRegisterIPPolicy caps signups per client address.
var DefaultRegisterIPPolicy = store.RateLimit{
	MaxAttempts: 5,
	Window:      time.Hour,
}

// DefaultPasswordResetPolicy limits reset emails per address.
var DefaultPasswordResetPolicy = store.RateLimit{
	MaxAttempts: 3,
	Window:      time.Hour,
}

// DefaultResendVerificationPolicy limits verification re-sends per address.
var DefaultResendVerificationPolicy = store.RateLimit{
	MaxAttempts: 3,
	Window:      time.Hour,
}

// AuthHandler holds dependencies for account handlers and middleware.
type AuthHandler struct {
	PS Store
	RS SessionCache
	RL RateLimiter
	// ML sends reset and verification links. Nil disables both emails.
	ML mail.Mailer

	// TrialSearches is granted at registration. Nil means DefaultTrialSearches.
	TrialSearches *int
	// SessionTTL is the default session lifetime. Zero means DefaultSessionTTL.
	SessionTTL time.Duration
	// Zero values fall back to the Default*Policy vars.
	LoginPolicy    store.RateLimit
	RegisterPolicy store.RateLimit
	ResetPolicy    store.RateLimit
	ResendPolicy   store.RateLimit
}

func (h *AuthHandler) trialSearches() int {
	if h.TrialSearches != nil && *h.TrialSearches >= 0 {
		return *h.TrialSearches
	}
	return DefaultTrialSearches
}

func (h *AuthHandler) loginPolicy() store.RateLimit {
	return policyOr(h.LoginPolicy, DefaultLoginEmailPolicy)
}

func (h *AuthHandler) registerPolicy() store.RateLimit {
	return policyOr(h.RegisterPolicy, DefaultRegisterIPPolicy)
}

func (h *AuthHandler) resetPolicy() store.RateLimit {
	return policyOr(h.ResetPolicy, DefaultPasswordResetPolicy)
}

func (h *AuthHandler) resendPolicy() store.RateLimit {
	return policyOr(h.ResendPolicy, DefaultResendVerificationPolicy)
}

func policyOr(p, def store.RateLimit) store.RateLimit {
	if p.MaxAttempts > 0 && p.Window > 0 {
		return p
	}
	return def
}

func (h *AuthHandler) sessionTTL() time.Duration {
	if h.SessionTTL > 0 {
		return h.SessionTTL
	}
	return DefaultSessionTTL
}

// allow runs the rate limiter and writes the 429/500 itself when the call must stop.
func (h *AuthHandler) allow(w http.ResponseWriter, r *http.Request, key string, policy store.RateLimit) bool {
	err := h.RL.Allow(r.Context(), key, policy)
	if err == nil {
		return true
	}
	if errors.Is(err, store.ErrRateLimitExceeded) {
		web.LogInfo(r, "rate limited", "key", key)
		web.TooManyRequests(w, "Too many attempts. Please try again later.")
		return false
	}
	web.InternalServerError(w, r, err)
	return false
}

// Register handles POST /register -- username + email + password signup.
// Returns 201 with the new profile, 400 for validation errors or a taken username,
// 403 when the client address is blocked. Never reveals whether the email already exists.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := web.DecodeJSON(w, r, &in, maxAuthBody); err != nil {
		web.LogWarn(r, "failed to decode register input", "error", err)
		web.BadRequest(w, "error decoding request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)
	if msg := ValidateUsername(username); msg != "" {
		web.BadRequest(w, msg)
		return
	}
	if msg := ValidateEmail(email); msg != "" {
		web.BadRequest(w, msg)
		return
	}
	if msg := ValidatePassword(in.Password); msg != "" {
		web.BadRequest(w, msg)
		return
	}

	ip := web.ClientIP(r)
	if !h.allow(w, r, "register:ip:"+ip, h.registerPolicy()) {
		return
	}

	usage, err := h.PS.GetIPUsage(r.Context(), ip)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		web.InternalServerError(w, r, err)
		return
	case usage.IsBlocked:
		web.LogWarn(r, "registration from blocked address")
		web.Forbidden(w, "Registrations from this network are blocked.")
		return
	}

	hashed, err := HashPassword(in.Password)
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	userID, err := uuid.NewV7()
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}

	u := &store.User{
		ID:                userID,
		Email:             email,
		Username:          username,
		PasswordHash:      hashed,
		Role:              store.RoleUser,
		RemainingSearches: h.trialSearches(),
		RegistrationIP:    &ip,
	}
	if err := h.PS.CreateUser(r.Context(), u); err != nil {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
			web.InternalServerError(w, r, err)
			return
		}
		if pgErr.ConstraintName == "users_username_key" {
			web.BadRequest(w, "Username is already taken.")
			return
		}
		// Duplicate email -- same 201 as a real registration. The id was never persisted.
		web.LogInfo(r, "registration attempted with existing email")
		writeRegistered(w, u)
		return
	}

	if err := h.PS.RecordAccountCreation(r.Context(), ip); err != nil {
		web.LogWarn(r, "failed to record ip usage", "error", err)
	}

	web.LogInfo(r, "user registered", "user_id", userID)
	h.sendVerificationEmail(r, u, "registration")
	writeRegistered(w, u)
}

func writeRegistered(w http.ResponseWriter, u *store.User) {
	web.JSON(w, http.StatusCreated, struct {
		UserID            uuid.UUID `json:"userId"`
		Username          string    `json:"username"`
		RemainingSearches int       `json:"remainingSearches"`
		EmailVerified     bool      `json:"emailVerified"`
	}{u.ID, u.Username, u.RemainingSearches, u.EmailVerified})
}

// Login handles POST /login -- email + password authentication.
// Returns 200 with user_id and CSRF token, 401 for bad credentials, 403 for banned accounts.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		RememberMe bool   `json:"rememberMe"`
	}
	if err := web.DecodeJSON(w, r, &in, maxAuthBody); err != nil {
		web.LogWarn(r, "failed to decode login input", "error", err)
		web.BadRequest(w, "error decoding request body")
		return
	}

	// Invalid email or missing password -- both generic 401.
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if ValidateEmail(email) != "" || in.Password == "" {
		web.Unauthorized(w, "invalid credentials")
		return
	}

	if !h.allow(w, r, "login:email:"+email, h.loginPolicy()) {
		return
	}

	user, err := h.PS.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			VerifyPassword(in.Password, dummyPasswordHash)
			web.LogInfo(r, "login attempted with non-existent email")
		} else {
			web.LogError(r, "failed to fetch user for login", "error", err)
		}
		web.Unauthorized(w, "invalid credentials")
		return
	}

	valid, err := VerifyPassword(in.Password, user.PasswordHash)
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	if !valid {
		web.LogInfo(r, "login attempted with incorrect password", "user_id", user.ID)
		web.Unauthorized(w, "invalid credentials")
		return
	}
	if user.IsBanned {
		web.LogInfo(r, "login refused for banned user", "user_id", user.ID)
		web.Forbidden(w, "Your account has been suspended.")
		return
	}

	token, tokenHash, err := GenerateToken()
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	csrfToken, err := GenerateCSRFToken()
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	sessionID, err := uuid.NewV7()
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}

	ttl := h.sessionTTL()
	if in.RememberMe {
		ttl = rememberMeTTL
	}
	expiresAt := time.Now().Add(ttl)
	ip := web.ClientIP(r)
	userAgent := r.UserAgent()

	err = h.PS.CreateSession(r.Context(), sessionID, user.ID, tokenHash[:], csrfToken[:], expiresAt, &ip, &userAgent)
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}

	// Postgres is the source of truth; the cache is best effort.
	err = h.RS.SetSession(r.Context(), cacheKey(tokenHash[:]), store.Session{
		ID:        sessionID,
		UserID:    user.ID,
		TokenHash: tokenHash[:],
		CSRFToken: csrfToken[:],
		ExpiresAt: expiresAt,
	}, ttl)
	if err != nil {
		web.LogWarn(r, "failed to cache session in redis", "error", err)
	}
	if err := h.PS.TouchLastLogin(r.Context(), user.ID); err != nil {
		web.LogWarn(r, "failed to update last login", "error", err)
	}

	SetSessionCookie(w, *token, expiresAt)
	web.LogInfo(r, "user logged in", "user_id", user.ID, "remember_me", in.RememberMe)

	web.JSON(w, http.StatusOK, struct {
		UserID    uuid.UUID `json:"userId"`
		CSRFToken string    `json:"csrfToken"`
	}{user.ID, encodeToken(csrfToken[:])})
}

// Logout handles POST /logout -- ends the current session.
// Deletes from Redis (non-fatal) then Postgres (fatal), clears cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		web.InternalServerError(w, r, errors.New("missing session context"))
		return
	}
	tokenHash, ok := TokenHashFromContext(r.Context())
	if !ok {
		web.InternalServerError(w, r, errors.New("missing session context"))
		return
	}

	if err := h.RS.DeleteSession(r.Context(), cacheKey(tokenHash), userID); err != nil {
		web.LogWarn(r, "failed to delete session from redis", "error", err)
	}
	if err := h.PS.DeleteSession(r.Context(), tokenHash); err != nil {
		web.InternalServerError(w, r, err)
		return
	}

	ClearSessionCookie(w)
	web.LogInfo(r, "user logged out", "user_id", userID)
	web.OK(w, "logged out")
}

// LogoutAll handles POST /logout-all -- ends every session of the caller.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		web.InternalServerError(w, r, errors.New("missing session context"))
		return
	}

	if err := h.RS.DeleteAllUserSessions(r.Context(), userID); err != nil {
		web.LogWarn(r, "failed to delete all sessions from redis", "error", err)
	}
	if err := h.PS.DeleteAllUserSessions(r.Context(), userID); err != nil {
		web.InternalServerError(w, r, err)
		return
	}

	ClearSessionCookie(w)
	web.LogInfo(r, "user logged out of all devices", "user_id", userID)
	web.OK(w, "logged out of all devices")
}

// Me handles GET /me -- the caller's profile including remaining searches.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		web.InternalServerError(w, r, errors.New("missing session context"))
		return
	}

	u, err := h.PS.GetUserByID(r.Context(), userID)
	if errors.Is(err, pgx.ErrNoRows) {
		web.NotFound(w, "User not found.")
		return
	}
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, u)
}

// DeleteMe handles DELETE /me -- removes the caller's account. Searches and their
// results go with it.
func (h *AuthHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		web.InternalServerError(w, r, errors.New("missing session context"))
		return
	}

	if err := h.RS.DeleteAllUserSessions(r.Context(), userID); err != nil {
		web.LogWarn(r, "failed to delete all sessions from redis", "error", err)
	}
	err := h.PS.DeleteUser(r.Context(), userID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		web.InternalServerError(w, r, err)
		return
	}

	ClearSessionCookie(w)
	web.LogInfo(r, "user deleted account", "user_id", userID)
	web.OK(w, "account deleted")
}
