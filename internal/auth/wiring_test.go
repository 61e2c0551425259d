package auth

// wiring_test.go
//
// Catches bugs where handlers and middleware hand data to each other incorrectly.
// One mock store and cache are shared across every step:
//
//   - Register (create user) -> Login (credentials) -> cookie + csrf token
//   - Cookie -> RequireAuth -> CSRFMiddleware -> protected handler
//   - RequireAuth (context) -> Logout -> cookie no longer accepted

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/testutil"
)

func TestSessionWiring(t *testing.T) {
	ms := testutil.NewMockStore()
	h, mc, _ := newTestHandler(ms)

	w := httptest.NewRecorder()
	h.Register(w, jsonRequest(http.MethodPost, "/register",
		`{"username":"homer","email":"homer@example.com","password":"`+validPassword+`"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.Login(w, jsonRequest(http.MethodPost, "/login", loginBody("homer@example.com", validPassword, false)))
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", w.Code)
	}
	var login struct {
		CSRFToken string `json:"csrfToken"`
	}
	json.NewDecoder(w.Body).Decode(&login)
	cookie := sessionCookie(w)

	protected := h.RequireAuth(h.CSRFMiddleware(passHandler))
	send := func(method string, csrf string) int {
		r := httptest.NewRequest(method, "/search", nil)
		r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie.Value})
		if csrf != "" {
			r.Header.Set(CSRFHeader, csrf)
		}
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, r)
		return w.Code
	}

	if got := send(http.MethodPost, login.CSRFToken); got != http.StatusOK {
		t.Errorf("authenticated POST with csrf: expected 200, got %d", got)
	}
	if got := send(http.MethodPost, ""); got != http.StatusForbidden {
		t.Errorf("POST without csrf: expected 403, got %d", got)
	}
	if got := send(http.MethodGet, ""); got != http.StatusOK {
		t.Errorf("GET without csrf: expected 200, got %d", got)
	}

	// Same path after the cache entry is evicted
	clear(mc.Sessions)
	if got := send(http.MethodPost, login.CSRFToken); got != http.StatusOK {
		t.Errorf("postgres fallback: expected 200, got %d", got)
	}

	r := httptest.NewRequest(http.MethodPost, "/logout", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie.Value})
	r.Header.Set(CSRFHeader, login.CSRFToken)
	w = httptest.NewRecorder()
	h.RequireAuth(h.CSRFMiddleware(http.HandlerFunc(h.Logout))).ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}

	if got := send(http.MethodGet, ""); got != http.StatusUnauthorized {
		t.Errorf("after logout: expected 401, got %d", got)
	}
}
