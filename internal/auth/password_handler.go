// password_handler.go -- forgotten password: request a reset link, then confirm it.
package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/mail"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/web"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

const resetMessage = "If that email is registered, a reset link has been sent."

// decodeLinkToken turns the token from an emailed link back into its stored hash.
func decodeLinkToken(s string) ([]byte, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return nil, false
	}
	sum := sha256.Sum256(raw)
	return sum[:], true
}

// PasswordReset handles POST /password-reset -- emails a single-use reset link.
// Always answers 200 with the same message so the caller cannot learn which emails exist.
func (h *AuthHandler) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := web.DecodeJSON(w, r, &in, maxAuthBody); err != nil {
		web.LogWarn(r, "failed to decode password reset input", "error", err)
		web.BadRequest(w, "error decoding request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	// Validate first so junk never becomes a Redis key.
	if msg := ValidateEmail(email); msg != "" {
		web.BadRequest(w, msg)
		return
	}
	if !h.allow(w, r, "reset:email:"+email, h.resetPolicy()) {
		return
	}

	user, err := h.PS.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			web.LogInfo(r, "password reset for unknown email")
		} else {
			web.LogError(r, "failed to fetch user for password reset", "error", err)
		}
		web.OK(w, resetMessage)
		return
	}

	if err := h.mailToken(r, user, store.TokenPasswordReset, mail.KindPasswordReset, resetTokenTTL); err != nil {
		web.LogError(r, "failed to send password reset", "error", err, "user_id", user.ID)
	} else {
		web.LogInfo(r, "password reset requested", "user_id", user.ID)
	}
	web.OK(w, resetMessage)
}

// PasswordConfirm handles POST /password-reset/confirm -- sets a new password from a reset link.
// Every session of the user is ended. 400 for a weak password or a bad, used or expired token.
func (h *AuthHandler) PasswordConfirm(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := web.DecodeJSON(w, r, &in, maxAuthBody); err != nil {
		web.LogWarn(r, "failed to decode password confirm input", "error", err)
		web.BadRequest(w, "error decoding request body")
		return
	}

	if msg := ValidatePassword(in.NewPassword); msg != "" {
		web.BadRequest(w, msg)
		return
	}
	tokenHash, ok := decodeLinkToken(in.Token)
	if !ok {
		web.BadRequest(w, "Invalid or expired reset link.")
		return
	}

	userID, err := h.PS.ConsumeToken(r.Context(), tokenHash, store.TokenPasswordReset)
	if errors.Is(err, pgx.ErrNoRows) {
		web.LogWarn(r, "password reset with invalid or expired token")
		web.BadRequest(w, "Invalid or expired reset link.")
		return
	}
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}

	hashed, err := HashPassword(in.NewPassword)
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}
	if err := h.PS.UpdateUserPassword(r.Context(), userID, hashed); err != nil {
		web.InternalServerError(w, r, err)
		return
	}

	if err := h.RS.DeleteAllUserSessions(r.Context(), userID); err != nil {
		web.LogWarn(r, "failed to delete all sessions from redis", "error", err)
	}
	if err := h.PS.DeleteAllUserSessions(r.Context(), userID); err != nil {
		web.InternalServerError(w, r, err)
		return
	}

	// The link reached the inbox, which proves ownership of the address.
	if err := h.PS.SetEmailVerified(r.Context(), userID); err != nil {
		web.LogWarn(r, "failed to mark email verified after reset", "error", err, "user_id", userID)
	}

	web.LogInfo(r, "user reset password", "user_id", userID)
	web.OK(w, "Password updated. Please log in again.")
}

// mailToken stores a fresh tokenType token for user and mails the link.
// A nil mailer is a no-op, so no orphan tokens are written when mail is off.
func (h *AuthHandler) mailToken(r *http.Request, user *store.User, tokenType string, kind mail.Kind, ttl time.Duration) error {
	if h.ML == nil {
		web.LogDebug(r, "mail disabled, skipping", "kind", kind)
		return nil
	}

	token, tokenHash, err := GenerateToken()
	if err != nil {
		return err
	}
	tokenID, err := uuid.NewV7()
	if err != nil {
		return err
	}
	if err := h.PS.CreateToken(r.Context(), tokenID, user.ID, tokenType, tokenHash[:], time.Now().Add(ttl)); err != nil {
		return err
	}

	return h.ML.Send(r.Context(), mail.Message{
		Kind:      kind,
		To:        user.Email,
		Token:     encodeToken(token[:]),
		ExpiresIn: ttl,
		Vars:      map[string]string{"username": user.Username},
	})
}
