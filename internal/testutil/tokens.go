// tokens.go
//
// Single-use token methods of MockStore and a recording Mailer.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/mail"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// MockToken is one row of the tokens table.
type MockToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      string
	ExpiresAt time.Time
	Used      bool
}

// TokensOf returns copies of userID's tokens of tokenType.
func (m *MockStore) TokensOf(userID uuid.UUID, tokenType string) []MockToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockToken
	for _, t := range m.Tokens {
		if t.UserID == userID && t.Type == tokenType {
			out = append(out, *t)
		}
	}
	return out
}

func (m *MockStore) CreateToken(_ context.Context, id, userID uuid.UUID, tokenType string, tokenHash []byte, expiresAt time.Time) error {
	if m.CreateTokenErr != nil {
		return m.CreateTokenErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Tokens[string(tokenHash)]; ok {
		return uniqueViolation("tokens_token_hash_key")
	}
	m.Tokens[string(tokenHash)] = &MockToken{ID: id, UserID: userID, Type: tokenType, ExpiresAt: expiresAt}
	return nil
}

// ConsumeToken marks the token used. Unknown, used, expired or mistyped tokens return pgx.ErrNoRows.
func (m *MockStore) ConsumeToken(_ context.Context, tokenHash []byte, tokenType string) (uuid.UUID, error) {
	if m.ConsumeTokenErr != nil {
		return uuid.Nil, m.ConsumeTokenErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tokens[string(tokenHash)]
	if !ok || t.Used || t.Type != tokenType || !t.ExpiresAt.After(time.Now()) {
		return uuid.Nil, pgx.ErrNoRows
	}
	t.Used = true
	return t.UserID, nil
}

func (m *MockStore) SetEmailVerified(_ context.Context, id uuid.UUID) error {
	if m.SetEmailVerifiedErr != nil {
		return m.SetEmailVerifiedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if !u.EmailVerified {
		now := time.Now()
		u.EmailVerified, u.EmailVerifiedAt = true, &now
	}
	return nil
}

func (m *MockStore) UpdateUserPassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	if m.UpdatePasswordErr != nil {
		return m.UpdatePasswordErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

// MockMailer satisfies mail.Mailer and keeps every Message.
// SendErr, when set, is returned after recording.
type MockMailer struct {
	SendErr error

	mu   sync.Mutex
	sent []mail.Message
}

func (m *MockMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.SendErr
}

// Sent returns the messages handed to Send, oldest first.
func (m *MockMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

// Last returns the most recent message, or false if none was sent.
func (m *MockMailer) Last() (mail.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return mail.Message{}, false
	}
	return m.sent[len(m.sent)-1], true
}
