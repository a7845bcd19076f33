package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := []byte("test-secret")

	token, err := GenerateToken(secret, "bench-camera", time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.Subject != "bench-camera" {
		t.Errorf("Expected subject bench-camera, got %s", claims.Subject)
	}
	if claims.Role != RoleStream {
		t.Errorf("Expected role %s, got %s", RoleStream, claims.Role)
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > time.Hour {
		t.Errorf("Unexpected expiry %v", claims.ExpiresAt)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	secret := []byte("test-secret")

	valid, err := GenerateToken(secret, "cam", time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &JWTClaims{
		Role: RoleStream,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "cam",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("Failed to sign expired token: %v", err)
	}

	tests := []struct {
		name   string
		secret []byte
		token  string
	}{
		{name: "wrong secret", secret: []byte("other"), token: valid},
		{name: "expired", secret: secret, token: expired},
		{name: "garbage", secret: secret, token: "not-a-jwt"},
		{name: "empty", secret: secret, token: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateToken(tt.secret, tt.token); err == nil {
				t.Error("Expected validation to fail")
			}
		})
	}
}

func TestGenerateToken_RequiresSecretAndSubject(t *testing.T) {
	if _, err := GenerateToken(nil, "cam", time.Hour); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("Expected ErrMissingSecret, got %v", err)
	}
	if _, err := GenerateToken([]byte("s"), "", time.Hour); err == nil {
		t.Error("Expected an error for an empty subject")
	}
	if _, err := ValidateToken(nil, "x"); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("Expected ErrMissingSecret, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "Bearer abc.def", want: "abc.def"},
		{header: "Bearer  abc ", want: "abc"},
		{header: "Basic abc", want: ""},
		{header: "", want: ""},
	}

	for _, tt := range tests {
		if got := BearerToken(tt.header); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
