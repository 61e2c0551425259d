// middleware.go

// Session authentication and authorization middleware.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/web"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// contextKey is unexported to prevent collisions with other packages using the same context.
type contextKey string

const userIDKey contextKey = "user_id"
const tokenHashKey contextKey = "token_hash"
const csrfTokenKey contextKey = "csrf_token"

// WithUserID returns ctx carrying the authenticated user's id.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext retrieves authenticated user's ID from context.
// Returns zero UUID and false if RequireAuth hasn't run.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// TokenHashFromContext retrieves session token hash from context.
func TokenHashFromContext(ctx context.Context) ([]byte, bool) {
	hash, ok := ctx.Value(tokenHashKey).([]byte)
	return hash, ok
}

// CSRFTokenFromContext retrieves session CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) ([]byte, bool) {
	token, ok := ctx.Value(csrfTokenKey).([]byte)
	return token, ok
}

// RequireAuth validates the session cookie, checking Redis then Postgres as fallback.
// Injects user_id, token_hash and csrf_token into context on success; returns 401 on failure.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(SessionCookieName)
		if err != nil || c.Value == "" {
			web.LogWarn(r, "require auth failed", "reason", "missing_session_cookie")
			web.Unauthorized(w, "unauthorized")
			return
		}
		raw, err := base64.RawURLEncoding.DecodeString(c.Value)
		if err != nil {
			web.LogWarn(r, "require auth failed", "reason", "invalid_cookie_encoding")
			web.Unauthorized(w, "unauthorized")
			return
		}
		sum := sha256.Sum256(raw)
		tokenHash := sum[:]
		key := cacheKey(tokenHash)

		var userID uuid.UUID
		var csrfToken []byte
		sess, err := h.RS.GetSession(r.Context(), key)
		if err == nil {
			userID, csrfToken = sess.UserID, sess.CSRFToken
		} else {
			if !errors.Is(err, store.ErrCacheMiss) {
				web.LogError(r, "redis session lookup failed, falling back to postgres", "error", err)
			}
			pgSess, err := h.PS.GetSessionByTokenHash(r.Context(), tokenHash)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					web.LogWarn(r, "require auth failed", "reason", "session_not_found")
				} else {
					web.LogError(r, "require auth failed fetching session from db", "error", err)
				}
				web.Unauthorized(w, "unauthorized")
				return
			}
			// Repopulate cache, non-fatal. A non-positive TTL would mean no expiry in Redis.
			if ttl := time.Until(pgSess.ExpiresAt); ttl > time.Second {
				if err := h.RS.SetSession(r.Context(), key, *pgSess, ttl); err != nil {
					web.LogWarn(r, "failed to repopulate session cache", "error", err)
				}
			}
			userID, csrfToken = pgSess.UserID, pgSess.CSRFToken
		}

		ctx := WithUserID(r.Context(), userID)
		ctx = context.WithValue(ctx, tokenHashKey, tokenHash)
		ctx = context.WithValue(ctx, csrfTokenKey, csrfToken)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin admits only users holding the admin role. Must run after RequireAuth.
// The role is read from Postgres on every request so a demotion takes effect at once.
func (h *AuthHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			web.Unauthorized(w, "unauthorized")
			return
		}
		u, err := h.PS.GetUserByID(r.Context(), userID)
		if errors.Is(err, pgx.ErrNoRows) {
			web.Unauthorized(w, "unauthorized")
			return
		}
		if err != nil {
			web.InternalServerError(w, r, err)
			return
		}
		if !u.IsAdmin() || u.IsBanned {
			web.LogWarn(r, "admin access denied", "user_id", userID)
			web.Forbidden(w, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
