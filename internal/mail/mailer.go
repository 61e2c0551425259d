// Package mail delivers the account emails: password reset links and email
// verification links.
//
// Handlers talk to a Mailer. In production that is a Queue, which parks each
// Message in Redis and returns; Queue.Run drains the list into an SMTPMailer.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Kind selects the template and link base for a Message.
type Kind string

const (
	KindPasswordReset     Kind = "password_reset"
	KindEmailVerification Kind = "email_verification"
)

// Message is one email to send. Token is the raw token that goes into the link;
// only its hash is ever stored.
type Message struct {
	Kind      Kind              `json:"kind"`
	To        string            `json:"to"`
	Token     string            `json:"token"`
	ExpiresIn time.Duration     `json:"expiresIn"`
	Vars      map[string]string `json:"vars,omitempty"`
}

// Mailer sends a Message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NopMailer drops every message. Used when SMTP_HOST is unset.
type NopMailer struct{}

func (NopMailer) Send(context.Context, Message) error { return nil }

// ErrUnknownKind is returned for a Message whose Kind has no template.
var ErrUnknownKind = errors.New("unknown mail kind")

type template struct {
	subject string
	body    string
}

var templates = map[Kind]template{
	KindPasswordReset: {
		subject: "Reset your Business Finder password",
		body: "Hi %%username%%,\n\n" +
			"Someone asked to reset the password for this account. Choose a new one here:\n\n" +
			"%%url%%\n\n" +
			"The link expires in %%expiresIn%%. If it wasn't you, ignore this email and your password stays the same.",
	},
	KindEmailVerification: {
		subject: "Confirm your Business Finder email",
		body: "Hi %%username%%,\n\n" +
			"Confirm that %%toEmail%% belongs to you:\n\n" +
			"%%url%%\n\n" +
			"The link expires in %%expiresIn%%. If you didn't sign up, ignore this email.",
	},
}

// reservedVars are filled by the mailer; caller vars with these names are dropped.
var reservedVars = map[string]bool{
	"url":       true,
	"toEmail":   true,
	"expiresIn": true,
}

var leftoverVar = regexp.MustCompile(`%%\w+%%`)

// applyVars replaces %%name%% with vars[name] and blanks any placeholder left over.
func applyVars(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "%%"+k+"%%", v)
	}
	return leftoverVar.ReplaceAllString(strings.NewReplacer(pairs...).Replace(tmpl), "")
}

// formatDuration renders an expiry the way the emails say it: "1 hour", "2 days", "30 minutes".
func formatDuration(d time.Duration) string {
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d >= 24*time.Hour:
		return plural(int(d.Hours()/24), "day")
	case d >= time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Minutes()), "minute")
	}
}

// SMTPConfig configures SMTPMailer. The URL bases are the frontend pages that
// read ?token= and call the confirm endpoints.
type SMTPConfig struct {
	Host          string
	Port          string
	Username      string
	Password      string
	From          string
	ResetURLBase  string
	VerifyURLBase string
}

// SMTPMailer delivers over SMTP with mandatory STARTTLS.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send renders msg and delivers it.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	raw, err := m.compose(msg)
	if err != nil {
		return err
	}
	if err := m.deliver(ctx, msg.To, raw); err != nil {
		return fmt.Errorf("sending %s email: %w", msg.Kind, err)
	}
	return nil
}

// compose builds the full RFC 5322 message for msg.
func (m *SMTPMailer) compose(msg Message) (string, error) {
	tmpl, ok := templates[msg.Kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, msg.Kind)
	}
	if strings.ContainsAny(msg.To, "\r\n") {
		return "", fmt.Errorf("invalid recipient %q", msg.To)
	}

	base := m.cfg.ResetURLBase
	if msg.Kind == KindEmailVerification {
		base = m.cfg.VerifyURLBase
	}

	vars := make(map[string]string, len(msg.Vars)+3)
	for k, v := range msg.Vars {
		if !reservedVars[k] {
			vars[k] = strings.NewReplacer("\r", "", "\n", "").Replace(v)
		}
	}
	vars["url"] = base + "?token=" + url.QueryEscape(msg.Token)
	vars["toEmail"] = msg.To
	vars["expiresIn"] = formatDuration(msg.ExpiresIn)

	return "From: " + m.cfg.From + "\r\n" +
		"To: " + msg.To + "\r\n" +
		"Subject: " + applyVars(tmpl.subject, vars) + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		applyVars(tmpl.body, vars), nil
}

// deliver refuses to authenticate over a plaintext session.
func (m *SMTPMailer) deliver(ctx context.Context, to, raw string) error {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", net.JoinHostPort(m.cfg.Host, m.cfg.Port))
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); !ok {
		return errors.New("smtp server does not offer STARTTLS")
	}
	if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
		return fmt.Errorf("smtp starttls: %w", err)
	}
	if m.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := wc.Write([]byte(raw)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return c.Quit()
}
