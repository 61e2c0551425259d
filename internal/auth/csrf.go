// csrf.go -- CSRF token generation and validation.
//
// Each session carries a random CSRF token, returned once at login.
// State-changing requests must echo it in X-CSRF-Token.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/web"
)

// CSRFHeader is the request header carrying the base64url CSRF token.
const CSRFHeader = "X-CSRF-Token"

// GenerateCSRFToken creates a 256-bit cryptographically random CSRF token.
func GenerateCSRFToken() (*[32]byte, error) {
	var token [32]byte
	if _, err := rand.Read(token[:]); err != nil {
		return nil, fmt.Errorf("generating token with rand: %w", err)
	}
	return &token, nil
}

// ValidateCSRFToken compares the provided token against the stored one in constant time.
func ValidateCSRFToken(provided, stored [32]byte) bool {
	return subtle.ConstantTimeCompare(provided[:], stored[:]) == 1
}

// CSRFMiddleware enforces the session CSRF token on POST, PUT, PATCH and DELETE.
// Must run after RequireAuth. Mismatches get a generic 403.
func (h *AuthHandler) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		stored, ok := CSRFTokenFromContext(r.Context())
		if !ok || len(stored) != 32 {
			web.LogWarn(r, "csrf check failed", "reason", "no_session_token")
			web.Forbidden(w, "forbidden")
			return
		}
		provided, err := base64.RawURLEncoding.DecodeString(r.Header.Get(CSRFHeader))
		if err != nil || len(provided) != 32 {
			web.LogWarn(r, "csrf check failed", "reason", "malformed_header")
			web.Forbidden(w, "forbidden")
			return
		}
		if !ValidateCSRFToken([32]byte(provided), [32]byte(stored)) {
			web.LogWarn(r, "csrf check failed", "reason", "mismatch")
			web.Forbidden(w, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
