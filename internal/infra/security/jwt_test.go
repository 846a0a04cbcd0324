package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/arklim/realm-auth-service/internal/core/domain"
)

func newTestTokenService(t *testing.T, now func() time.Time) *TokenService {
	t.Helper()
	svc, err := NewTokenService("test-secret", 24*time.Hour, 5*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}
	return svc.WithClock(now)
}

func TestSessionTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := newTestTokenService(t, func() time.Time { return now })

	input := domain.SessionClaims{UserID: "Ab3dE5f", Email: "alice@example.com", Realm: "User1"}
	token, issued, err := svc.IssueSessionToken(input)
	if err != nil {
		t.Fatalf("IssueSessionToken returned error: %v", err)
	}
	if issued.JTI == "" {
		t.Fatal("expected revocation id to be set")
	}
	if !issued.ExpiresAt.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry: %v", issued.ExpiresAt)
	}

	claims, err := svc.ValidateSessionToken(token)
	if err != nil {
		t.Fatalf("ValidateSessionToken returned error: %v", err)
	}
	if claims.JTI != issued.JTI || !claims.ExpiresAt.Equal(issued.ExpiresAt) || !claims.IssuedAt.Equal(issued.IssuedAt) {
		t.Fatalf("claims mismatch: got %+v want %+v", claims, issued)
	}
	if claims.UserID != input.UserID || claims.Email != input.Email || claims.Realm != input.Realm {
		t.Fatalf("payload not preserved: %+v", claims)
	}
}

func TestSessionTokenUniqueRevocationID(t *testing.T) {
	svc := newTestTokenService(t, time.Now)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		_, claims, err := svc.IssueSessionToken(domain.SessionClaims{UserID: "u"})
		if err != nil {
			t.Fatalf("IssueSessionToken returned error: %v", err)
		}
		if _, dup := seen[claims.JTI]; dup {
			t.Fatalf("duplicate revocation id %s", claims.JTI)
		}
		seen[claims.JTI] = struct{}{}
	}
}

func TestValidateSessionTokenExpired(t *testing.T) {
	now := time.Now()
	svc := newTestTokenService(t, func() time.Time { return now })

	token, _, err := svc.IssueSessionToken(domain.SessionClaims{UserID: "u"})
	if err != nil {
		t.Fatalf("IssueSessionToken returned error: %v", err)
	}

	now = now.Add(25 * time.Hour)
	if _, err := svc.ValidateSessionToken(token); !errors.Is(err, domain.ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateSessionTokenInvalid(t *testing.T) {
	svc := newTestTokenService(t, time.Now)
	other, err := NewTokenService("other-secret", time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}

	foreign, _, err := other.IssueSessionToken(domain.SessionClaims{UserID: "u"})
	if err != nil {
		t.Fatalf("IssueSessionToken returned error: %v", err)
	}
	otp, err := svc.IssueOTPToken("123456")
	if err != nil {
		t.Fatalf("IssueOTPToken returned error: %v", err)
	}

	for name, token := range map[string]string{
		"empty":     "",
		"garbage":   "not.a.token",
		"signature": foreign,
		"otp type":  otp,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.ValidateSessionToken(token); !errors.Is(err, domain.ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestOTPTokenRoundTripAndExpiry(t *testing.T) {
	now := time.Now()
	svc := newTestTokenService(t, func() time.Time { return now })

	token, err := svc.IssueOTPToken("654321")
	if err != nil {
		t.Fatalf("IssueOTPToken returned error: %v", err)
	}
	if strings.Contains(token, "654321") {
		t.Fatal("token must not expose the code in plain text")
	}

	code, err := svc.ValidateOTPToken(token)
	if err != nil {
		t.Fatalf("ValidateOTPToken returned error: %v", err)
	}
	if code != "654321" {
		t.Fatalf("unexpected code %q", code)
	}

	now = now.Add(6 * time.Minute)
	if _, err := svc.ValidateOTPToken(token); !errors.Is(err, domain.ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	if _, err := NewTokenService("  ", time.Hour, time.Hour); !errors.Is(err, ErrSecretMissing) {
		t.Fatalf("expected ErrSecretMissing, got %v", err)
	}
}
