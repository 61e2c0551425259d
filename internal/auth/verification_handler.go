// verification_handler.go -- email verification links.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/mail"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/store"
	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/web"
	"github.com/jackc/pgx/v5"
)

const resendMessage = "If that email is registered and unverified, a verification link has been sent."

// sendVerificationEmail mails a verification link. Failures are logged and never
// fail the enclosing request. trigger is "registration" or "resend".
func (h *AuthHandler) sendVerificationEmail(r *http.Request, user *store.User, trigger string) {
	if err := h.mailToken(r, user, store.TokenEmailVerification, mail.KindEmailVerification, verifyTokenTTL); err != nil {
		web.LogWarn(r, "failed to send verification email", "error", err, "user_id", user.ID, "trigger", trigger)
		return
	}
	web.LogDebug(r, "verification email queued", "user_id", user.ID, "trigger", trigger)
}

// VerifyEmail handles POST /verify-email -- consumes a verification link token.
// 200 on success, 400 for a bad, used or expired token.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if err := web.DecodeJSON(w, r, &in, maxAuthBody); err != nil {
		web.LogWarn(r, "failed to decode verify email input", "error", err)
		web.BadRequest(w, "error decoding request body")
		return
	}
	if in.Token == "" {
		web.BadRequest(w, "token is required")
		return
	}
	tokenHash, ok := decodeLinkToken(in.Token)
	if !ok {
		web.BadRequest(w, "Invalid or expired verification link.")
		return
	}

	userID, err := h.PS.ConsumeToken(r.Context(), tokenHash, store.TokenEmailVerification)
	if errors.Is(err, pgx.ErrNoRows) {
		web.LogWarn(r, "email verification with invalid or expired token")
		web.BadRequest(w, "Invalid or expired verification link.")
		return
	}
	if err != nil {
		web.InternalServerError(w, r, err)
		return
	}

	if err := h.PS.SetEmailVerified(r.Context(), userID); err != nil {
		web.InternalServerError(w, r, err)
		return
	}

	web.LogInfo(r, "email verified", "user_id", userID)
	web.OK(w, "Email verified.")
}

// ResendVerification handles POST /resend-verification.
// Answers 200 with one message whether the email is unknown, already verified or sent.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := web.DecodeJSON(w, r, &in, maxAuthBody); err != nil {
		web.LogWarn(r, "failed to decode resend verification input", "error", err)
		web.BadRequest(w, "error decoding request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if msg := ValidateEmail(email); msg != "" {
		web.BadRequest(w, msg)
		return
	}
	if !h.allow(w, r, "resend:email:"+email, h.resendPolicy()) {
		return
	}

	user, err := h.PS.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			web.LogInfo(r, "resend verification for unknown email")
		} else {
			web.LogWarn(r, "failed to fetch user for resend verification", "error", err)
		}
		web.OK(w, resendMessage)
		return
	}
	if user.EmailVerified {
		web.LogInfo(r, "resend verification for verified email", "user_id", user.ID)
		web.OK(w, resendMessage)
		return
	}

	h.sendVerificationEmail(r, user, "resend")
	web.OK(w, resendMessage)
}
