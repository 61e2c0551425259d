// password_test.go

// unit tests for HashPassword, VerifyPassword and the credential validators.
package auth

import (
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	t.Run("output matches PHC format", func(t *testing.T) {
		hash, err := HashPassword("correcthorsebatterystaple")
		if err != nil {
			t.Fatalf("HashPassword returned error: %v", err)
		}
		parts := strings.Split(hash, "$")
		if len(parts) != 6 {
			t.Fatalf("expected 6 parts, got %d: %q", len(parts), hash)
		}
		if parts[1] != "argon2id" || parts[2] != "v=19" || parts[3] != "m=65536,t=3,p=2" {
			t.Errorf("unexpected header %q", strings.Join(parts[:4], "$"))
		}
	})

	t.Run("unique salts per call", func(t *testing.T) {
		h1, _ := HashPassword("same-password")
		h2, _ := HashPassword("same-password")
		if h1 == h2 {
			t.Error("two hashes of the same password should differ")
		}
	})
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("real-password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	t.Run("correct password verifies", func(t *testing.T) {
		ok, err := VerifyPassword("real-password", hash)
		if err != nil || !ok {
			t.Errorf("expected match, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		ok, err := VerifyPassword("wrong-password", hash)
		if err != nil || ok {
			t.Errorf("expected mismatch, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("dummy hash parses", func(t *testing.T) {
		if _, err := VerifyPassword("anything", dummyPasswordHash); err != nil {
			t.Errorf("dummy hash must be well formed: %v", err)
		}
	})

	malformed := map[string]string{
		"not phc":        "not-a-valid-hash",
		"other algo":     "$bcrypt$v=19$m=65536,t=3,p=2$c29tZXNhbHQ$c29tZWhhc2g",
		"bad version":    "$argon2id$v=18$m=65536,t=3,p=2$c29tZXNhbHQ$c29tZWhhc2g",
		"bad params":     "$argon2id$v=19$memory$c29tZXNhbHQ$c29tZWhhc2g",
		"bad salt":       "$argon2id$v=19$m=65536,t=3,p=2$!!!invalid!!!$c29tZWhhc2g",
		"bad hash bytes": "$argon2id$v=19$m=65536,t=3,p=2$c29tZXNhbHQ$!!!invalid!!!",
	}
	for name, bad := range malformed {
		t.Run(name, func(t *testing.T) {
			if _, err := VerifyPassword("password", bad); err == nil {
				t.Errorf("expected error for %q", bad)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{"empty string", "", "No password provided!"},
		{"one under minimum", "seven77", "Password too short!"},
		{"exactly minimum", "eightchr", ""},
		{"exactly maximum", strings.Repeat("a", 128), ""},
		{"one over maximum", strings.Repeat("a", 129), "Password too long!"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidatePassword(tc.input); got != tc.wantMsg {
				t.Errorf("ValidatePassword(%q): expected %q, got %q", tc.input, tc.wantMsg, got)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"", false},
		{"ab", false},
		{"abc", true},
		{"homer_j.simpson-1", true},
		{strings.Repeat("a", 30), true},
		{strings.Repeat("a", 31), false},
		{"has space", false},
		{"semi;colon", false},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := ValidateUsername(tc.input); (got == "") != tc.valid {
				t.Errorf("ValidateUsername(%q) = %q, valid=%v", tc.input, got, tc.valid)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"", false},
		{"a@b", false},
		{"a@b.co", true},
		{"homer@example.com", true},
		{"not an email", false},
		{strings.Repeat("a", 250) + "@b.co", false},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := ValidateEmail(tc.input); (got == "") != tc.valid {
				t.Errorf("ValidateEmail(%q) = %q, valid=%v", tc.input, got, tc.valid)
			}
		})
	}
}
