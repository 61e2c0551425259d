// verification_handler_test.go

// unit tests for VerifyEmail, ResendVerification and the registration email.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/mail"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/testutil"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/web"
	"github.com/gofrs/uuid/v5"
)

func TestRegister_SendsVerification(t *testing.T) {
	const body = `{"username":"homer","email":"homer@example.com","password":"` + validPassword + `"}`

	t.Run("new account gets a 24h link", func(t *testing.T) {
		ms := testutil.NewMockStore()
		h, _, _ := newTestHandler(ms)
		ml := &testutil.MockMailer{}
		h.ML = ml
		w := httptest.NewRecorder()

		h.Register(w, jsonRequest(http.MethodPost, "/register", body))

		if w.Code != http.StatusCreated {
			t.Fatalf("status: expected 201, got %d: %s", w.Code, w.Body)
		}
		var resp struct {
			UserID        uuid.UUID `json:"userId"`
			EmailVerified bool      `json:"emailVerified"`
		}
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.EmailVerified {
			t.Error("new account reported as verified")
		}

		msg, ok := ml.Last()
		if !ok {
			t.Fatal("no verification email sent")
		}
		if msg.Kind != mail.KindEmailVerification || msg.To != "homer@example.com" || msg.ExpiresIn != verifyTokenTTL {
			t.Errorf("unexpected message %+v", msg)
		}
		if n := len(ms.TokensOf(resp.UserID, store.TokenEmailVerification)); n != 1 {
			t.Errorf("expected one verification token, got %d", n)
		}
	})

	t.Run("mail failure does not fail registration", func(t *testing.T) {
		ms := testutil.NewMockStore()
		h, _, _ := newTestHandler(ms)
		h.ML = &testutil.MockMailer{SendErr: errors.New("queue down")}
		w := httptest.NewRecorder()

		h.Register(w, jsonRequest(http.MethodPost, "/register", body))

		if w.Code != http.StatusCreated {
			t.Errorf("status: expected 201, got %d", w.Code)
		}
	})

	t.Run("duplicate email sends nothing", func(t *testing.T) {
		existing := testutil.NewUser("homer@example.com", "someone", 3)
		ms := testutil.NewMockStore(existing)
		h, _, _ := newTestHandler(ms)
		ml := &testutil.MockMailer{}
		h.ML = ml
		w := httptest.NewRecorder()

		h.Register(w, jsonRequest(http.MethodPost, "/register", body))

		if w.Code != http.StatusCreated {
			t.Fatalf("status: expected 201, got %d", w.Code)
		}
		if len(ml.Sent()) != 0 {
			t.Error("mail sent for an existing email")
		}
	})
}

func TestVerifyEmail(t *testing.T) {
	verifyBody := func(token string) string {
		b, _ := json.Marshal(map[string]string{"token": token})
		return string(b)
	}

	t.Run("valid token verifies email", func(t *testing.T) {
		u := testutil.NewUser("homer@example.com", "homer", 3)
		ms := testutil.NewMockStore(u)
		h, _, _ := newTestHandler(ms)
		tok := seedLinkToken(t, ms, u.ID, store.TokenEmailVerification, time.Now().Add(time.Hour))
		w := httptest.NewRecorder()

		h.VerifyEmail(w, jsonRequest(http.MethodPost, "/verify-email", verifyBody(tok)))

		assertOKMessage(t, w, "Email verified.")
		got := ms.User(u.ID)
		if !got.EmailVerified || got.EmailVerifiedAt == nil {
			t.Errorf("email not verified: %+v", got)
		}
	})

	t.Run("replayed token returns 400", func(t *testing.T) {
		u := testutil.NewUser("homer@example.com", "homer", 3)
		ms := testutil.NewMockStore(u)
		h, _, _ := newTestHandler(ms)
		tok := seedLinkToken(t, ms, u.ID, store.TokenEmailVerification, time.Now().Add(time.Hour))

		h.VerifyEmail(httptest.NewRecorder(), jsonRequest(http.MethodPost, "/verify-email", verifyBody(tok)))
		w := httptest.NewRecorder()
		h.VerifyEmail(w, jsonRequest(http.MethodPost, "/verify-email", verifyBody(tok)))

		assertError(t, w, web.CodeInvalidArgument, "Invalid or expired verification link.")
	})

	t.Run("reset token cannot verify", func(t *testing.T) {
		u := testutil.NewUser("homer@example.com", "homer", 3)
		ms := testutil.NewMockStore(u)
		h, _, _ := newTestHandler(ms)
		tok := seedLinkToken(t, ms, u.ID, store.TokenPasswordReset, time.Now().Add(time.Hour))
		w := httptest.NewRecorder()

		h.VerifyEmail(w, jsonRequest(http.MethodPost, "/verify-email", verifyBody(tok)))

		assertError(t, w, web.CodeInvalidArgument, "Invalid or expired verification link.")
		if ms.User(u.ID).EmailVerified {
			t.Error("email verified with a reset token")
		}
	})

	t.Run("empty token returns 400", func(t *testing.T) {
		h, _, _ := newTestHandler(testutil.NewMockStore())
		w := httptest.NewRecorder()

		h.VerifyEmail(w, jsonRequest(http.MethodPost, "/verify-email", `{"token":""}`))

		assertError(t, w, web.CodeInvalidArgument, "token is required")
	})

	t.Run("bad base64 returns 400", func(t *testing.T) {
		h, _, _ := newTestHandler(testutil.NewMockStore())
		w := httptest.NewRecorder()

		h.VerifyEmail(w, jsonRequest(http.MethodPost, "/verify-email", verifyBody("!!!")))

		assertError(t, w, web.CodeInvalidArgument, "Invalid or expired verification link.")
	})

	t.Run("SetEmailVerified failure returns 500", func(t *testing.T) {
		u := testutil.NewUser("homer@example.com", "homer", 3)
		ms := testutil.NewMockStore(u)
		ms.SetEmailVerifiedErr = errors.New("db down")
		h, _, _ := newTestHandler(ms)
		tok := seedLinkToken(t, ms, u.ID, store.TokenEmailVerification, time.Now().Add(time.Hour))
		w := httptest.NewRecorder()

		h.VerifyEmail(w, jsonRequest(http.MethodPost, "/verify-email", verifyBody(tok)))

		assertError(t, w, web.CodeInternal, "")
	})
}

func TestResendVerification(t *testing.T) {
	const body = `{"email":"homer@example.com"}`

	newHandler := func(u *store.User) (*AuthHandler, *testutil.MockStore, *testutil.MockMailer, *testutil.MockRateLimiter) {
		ms := testutil.NewMockStore(u)
		h, _, rl := newTestHandler(ms)
		ml := &testutil.MockMailer{}
		h.ML = ml
		return h, ms, ml, rl
	}

	t.Run("unverified user gets a new link", func(t *testing.T) {
		u := testutil.NewUser("homer@example.com", "homer", 3)
		h, ms, ml, rl := newHandler(u)
		w := httptest.NewRecorder()

		h.ResendVerification(w, jsonRequest(http.MethodPost, "/resend-verification", body))

		assertOKMessage(t, w, resendMessage)
		if len(ml.Sent()) != 1 {
			t.Fatalf("expected one mail, got %d", len(ml.Sent()))
		}
		if n := len(ms.TokensOf(u.ID, store.TokenEmailVerification)); n != 1 {
			t.Errorf("expected one token, got %d", n)
		}
		if rl.Calls("resend:email:homer@example.com") != 1 {
			t.Error("resend rate limit not checked")
		}
	})

	t.Run("verified user gets the same answer and no mail", func(t *testing.T) {
		u := testutil.NewUser("homer@example.com", "homer", 3)
		u.EmailVerified = true
		h, _, ml, _ := newHandler(u)
		w := httptest.NewRecorder()

		h.ResendVerification(w, jsonRequest(http.MethodPost, "/resend-verification", body))

		assertOKMessage(t, w, resendMessage)
		if len(ml.Sent()) != 0 {
			t.Error("mail sent to a verified user")
		}
	})

	t.Run("unknown email gets the same answer", func(t *testing.T) {
		h, _, ml, _ := newHandler(testutil.NewUser("other@example.com", "other", 3))
		w := httptest.NewRecorder()

		h.ResendVerification(w, jsonRequest(http.MethodPost, "/resend-verification", body))

		assertOKMessage(t, w, resendMessage)
		if len(ml.Sent()) != 0 {
			t.Error("mail sent for unknown email")
		}
	})

	t.Run("rate limited returns 429", func(t *testing.T) {
		h, _, _, rl := newHandler(testutil.NewUser("homer@example.com", "homer", 3))
		rl.AllowErr = store.ErrRateLimitExceeded
		w := httptest.NewRecorder()

		h.ResendVerification(w, jsonRequest(http.MethodPost, "/resend-verification", body))

		assertError(t, w, web.CodeResourceExhausted, "")
	})

	t.Run("invalid email returns 400", func(t *testing.T) {
		h, _, _, _ := newHandler(testutil.NewUser("homer@example.com", "homer", 3))
		w := httptest.NewRecorder()

		h.ResendVerification(w, jsonRequest(http.MethodPost, "/resend-verification", `{"email":"nope"}`))

		assertError(t, w, web.CodeInvalidArgument, "")
	})
}
