package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/core/port"
)

const (
	tokenTypeSession = "session"
	tokenTypeOTP     = "otp"
)

// ErrSecretMissing indicates the signer was constructed without a secret.
var ErrSecretMissing = errors.New("jwt: signing secret not configured")

var signingMethod = jwt.SigningMethodHS256

// SessionTokenClaims is the wire form of a session token.
type SessionTokenClaims struct {
	Type   string `json:"typ"`
	UserID string `json:"id"`
	Email  string `json:"email"`
	Realm  string `json:"realm,omitempty"`
	jwt.RegisteredClaims
}

// OTPTokenClaims is the wire form of a one-time-code token. It carries no revocation id.
type OTPTokenClaims struct {
	Type string `json:"typ"`
	Code string `json:"otp"`
	jwt.RegisteredClaims
}

// TokenService signs and validates session and OTP tokens with HS256.
type TokenService struct {
	secret     []byte
	sessionTTL time.Duration
	otpTTL     time.Duration
	now        func() time.Time
}

var _ port.SessionTokenIssuer = (*TokenService)(nil)

// NewTokenService constructs a TokenService. Non-positive TTLs fall back to 24h.
func NewTokenService(secret string, sessionTTL, otpTTL time.Duration) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretMissing
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	if otpTTL <= 0 {
		otpTTL = 24 * time.Hour
	}
	return &TokenService{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		otpTTL:     otpTTL,
		now:        time.Now,
	}, nil
}

// WithClock overrides the time source, primarily for tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		s.now = now
	}
	return s
}

// SessionTTL is the maximum lifetime of a session token.
func (s *TokenService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// IssueSessionToken signs claims with a fresh revocation id and expiry.
// The returned claims reflect exactly what was signed.
func (s *TokenService) IssueSessionToken(claims domain.SessionClaims) (string, domain.SessionClaims, error) {
	issuedAt := jwt.NewNumericDate(s.now())
	expiresAt := jwt.NewNumericDate(issuedAt.Add(s.sessionTTL))

	wire := SessionTokenClaims{
		Type:   tokenTypeSession,
		UserID: claims.UserID,
		Email:  claims.Email,
		Realm:  claims.Realm,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   claims.UserID,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, wire).SignedString(s.secret)
	if err != nil {
		return "", domain.SessionClaims{}, fmt.Errorf("sign session token: %w", err)
	}

	claims.JTI = wire.ID
	claims.IssuedAt = issuedAt.Time
	claims.ExpiresAt = expiresAt.Time
	return signed, claims, nil
}

// ValidateSessionToken verifies signature and expiry. Revocation is not checked here.
func (s *TokenService) ValidateSessionToken(token string) (domain.SessionClaims, error) {
	var wire SessionTokenClaims
	if err := s.parse(token, &wire); err != nil {
		return domain.SessionClaims{}, err
	}
	if wire.Type != tokenTypeSession || wire.ID == "" || wire.ExpiresAt == nil {
		return domain.SessionClaims{}, domain.ErrInvalidToken
	}

	claims := domain.SessionClaims{
		UserID:    wire.UserID,
		Email:     wire.Email,
		Realm:     wire.Realm,
		JTI:       wire.ID,
		ExpiresAt: wire.ExpiresAt.Time,
	}
	if wire.IssuedAt != nil {
		claims.IssuedAt = wire.IssuedAt.Time
	}
	return claims, nil
}

// IssueOTPToken wraps code in a signed token that expires after the OTP TTL.
func (s *TokenService) IssueOTPToken(code string) (string, error) {
	issuedAt := jwt.NewNumericDate(s.now())
	wire := OTPTokenClaims{
		Type: tokenTypeOTP,
		Code: code,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  issuedAt,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.otpTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, wire).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign otp token: %w", err)
	}
	return signed, nil
}

// ValidateOTPToken returns the code carried by a valid OTP token.
func (s *TokenService) ValidateOTPToken(token string) (string, error) {
	var wire OTPTokenClaims
	if err := s.parse(token, &wire); err != nil {
		return "", err
	}
	if wire.Type != tokenTypeOTP || wire.Code == "" {
		return "", domain.ErrInvalidToken
	}
	return wire.Code, nil
}

func (s *TokenService) parse(token string, claims jwt.Claims) error {
	return parseHS256(token, s.secret, s.now, claims, true)
}

// parseHS256 maps jwt-library failures onto ErrExpiredToken and ErrInvalidToken.
func parseHS256(token string, key []byte, now func() time.Time, claims jwt.Claims, requireExp bool) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithTimeFunc(now),
	}
	if requireExp {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.ErrExpiredToken
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return domain.ErrInvalidToken
	}
	return nil
}
