package auth

import (
	"errors"
	"net/http/httptest"
	"testing"

	"mercator-hq/saturn/pkg/config"
)

func TestKeyValidator_Validate(t *testing.T) {
	v := NewKeyValidator([]config.APIKeyConfig{
		{Key: "etl-key-0123456789", User: "etl"},
		{Key: "old-key-0123456789", User: "legacy", Disabled: true},
	})

	tests := []struct {
		name     string
		key      string
		wantUser string
		wantErr  error
	}{
		{"valid", "etl-key-0123456789", "etl", nil},
		{"disabled", "old-key-0123456789", "", ErrKeyDisabled},
		{"unknown", "nope", "", ErrInvalidKey},
		{"empty", "", "", ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := v.Validate(tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if user != tt.wantUser {
				t.Errorf("Validate() = %q, want %q", user, tt.wantUser)
			}
		})
	}
}

func TestKeyValidator_AddRemove(t *testing.T) {
	v := NewKeyValidator(nil)
	v.Add(config.APIKeyConfig{Key: "k-0123456789abcdef", User: "ops"})
	if v.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", v.Len())
	}
	if user, err := v.Validate("k-0123456789abcdef"); err != nil || user != "ops" {
		t.Errorf("Validate() = %q, %v, want ops", user, err)
	}

	v.Remove("k-0123456789abcdef")
	if _, err := v.Validate("k-0123456789abcdef"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Validate() after Remove error = %v, want %v", err, ErrInvalidKey)
	}
}

func TestKeyFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
		wantOK  bool
	}{
		{"header", map[string]string{KeyHeader: " abc "}, "abc", true},
		{"authorization scheme", map[string]string{"Authorization": "ApiKey abc"}, "abc", true},
		{"header wins", map[string]string{KeyHeader: "one", "Authorization": "ApiKey two"}, "one", true},
		{"bearer token is not a key", map[string]string{"Authorization": "Bearer abc"}, "", false},
		{"empty scheme", map[string]string{"Authorization": "ApiKey  "}, "", false},
		{"none", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got, ok := KeyFromRequest(r)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("KeyFromRequest() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
