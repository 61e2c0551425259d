// csrf_test.go

// unit tests for GenerateCSRFToken, ValidateCSRFToken, and CSRFMiddleware.
package auth

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// passHandler returns 200 when reached.
var passHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// withCSRFContext injects stored as RequireAuth would.
func withCSRFContext(stored []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), csrfTokenKey, stored)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func fixedCSRFToken() [32]byte {
	var token [32]byte
	for i := range token {
		token[i] = byte(i + 100)
	}
	return token
}

// assertForbidden checks response is 403 JSON with the generic body.
func assertForbidden(t *testing.T, resp *http.Response) {
	t.Helper()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status: expected 403, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
	b, _ := io.ReadAll(resp.Body)
	if body := strings.TrimSpace(string(b)); body != `{"code":"permission_denied","message":"forbidden"}` {
		t.Errorf("unexpected body %q", body)
	}
}

func TestGenerateCSRFToken(t *testing.T) {
	t1, err := GenerateCSRFToken()
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	t2, err := GenerateCSRFToken()
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if *t1 == *t2 {
		t.Error("two tokens should differ")
	}
}

func TestValidateCSRFToken(t *testing.T) {
	a := fixedCSRFToken()
	if !ValidateCSRFToken(a, a) {
		t.Error("identical tokens should match")
	}
	b := a
	b[31] ^= 0x01
	if ValidateCSRFToken(a, b) {
		t.Error("one flipped bit should not match")
	}
}

func TestCSRFMiddleware(t *testing.T) {
	token := fixedCSRFToken()
	valid := base64.RawURLEncoding.EncodeToString(token[:])
	h := &AuthHandler{}
	handler := withCSRFContext(token[:], h.CSRFMiddleware(passHandler))

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method+" passes without header", func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(method, "/", nil))
			if w.Code != http.StatusOK {
				t.Errorf("status: expected 200, got %d", w.Code)
			}
		})
	}

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		t.Run(method+" with valid token passes", func(t *testing.T) {
			r := httptest.NewRequest(method, "/", nil)
			r.Header.Set(CSRFHeader, valid)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			if w.Code != http.StatusOK {
				t.Errorf("status: expected 200, got %d", w.Code)
			}
		})
	}

	rejected := map[string]string{
		"missing header": "",
		"invalid base64": "!!!not-valid-base64!!!",
		"short token":    base64.RawURLEncoding.EncodeToString(make([]byte, 16)),
		"mismatch":       base64.RawURLEncoding.EncodeToString(make([]byte, 32)),
	}
	for name, header := range rejected {
		t.Run("POST "+name+" returns 403", func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			if header != "" {
				r.Header.Set(CSRFHeader, header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assertForbidden(t, w.Result())
		})
	}

	t.Run("no stored token returns 403", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set(CSRFHeader, valid)
		w := httptest.NewRecorder()
		h.CSRFMiddleware(passHandler).ServeHTTP(w, r)
		assertForbidden(t, w.Result())
	})

	t.Run("short stored token returns 403", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set(CSRFHeader, base64.RawURLEncoding.EncodeToString(make([]byte, 32)))
		w := httptest.NewRecorder()
		withCSRFContext(make([]byte, 16), h.CSRFMiddleware(passHandler)).ServeHTTP(w, r)
		assertForbidden(t, w.Result())
	})
}
