package search

import (
	"errors"
	"strings"
	"testing"

	"github.com/RensithUdara/Bussiness-Finder-Web-App/internal/web"
)

func TestQueryNormalize(t *testing.T) {
	tests := []struct {
		name    string
		q       Query
		wantErr bool
	}{
		{"radius 1 accepted", Query{"Springfield", "restaurant", 1}, false},
		{"radius 100 accepted", Query{"Springfield", "restaurant", 100}, false},
		{"radius 0 rejected", Query{"Springfield", "restaurant", 0}, true},
		{"radius 101 rejected", Query{"Springfield", "restaurant", 101}, true},
		{"negative radius rejected", Query{"Springfield", "restaurant", -5}, true},
		{"missing city", Query{"", "restaurant", 5}, true},
		{"blank city", Query{"   ", "restaurant", 5}, true},
		{"missing type", Query{"Springfield", "", 5}, true},
		{"overlong city", Query{strings.Repeat("a", 121), "restaurant", 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.q.Normalize()
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			var se *Error
			if !errors.As(err, &se) || se.Code != web.CodeInvalidArgument {
				t.Errorf("expected invalid_argument, got %v", err)
			}
		})
	}

	t.Run("trims fields", func(t *testing.T) {
		got, err := Query{"  Springfield ", " cafe ", 5}.Normalize()
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if got.City != "Springfield" || got.BusinessType != "cafe" {
			t.Errorf("expected trimmed fields, got %+v", got)
		}
	})
}

func TestQueryCacheKey(t *testing.T) {
	t.Run("city casing collides", func(t *testing.T) {
		a := Query{"Springfield", "restaurant", 5}.CacheKey()
		b := Query{"SPRINGFIELD", "restaurant", 5}.CacheKey()
		c := Query{" springfield", "restaurant", 5}.CacheKey()
		if a != b || a != c {
			t.Errorf("expected equal keys, got %q %q %q", a, b, c)
		}
		if a != "springfield|restaurant|5" {
			t.Errorf("unexpected key %q", a)
		}
	})

	t.Run("type and radius match exactly", func(t *testing.T) {
		base := Query{"Springfield", "restaurant", 5}.CacheKey()
		if base == (Query{"Springfield", "cafe", 5}).CacheKey() {
			t.Error("different business types share a key")
		}
		if base == (Query{"Springfield", "restaurant", 10}).CacheKey() {
			t.Error("different radii share a key")
		}
	})
}
