package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/core/port"
)

type urlTokenClaims struct {
	Purpose string `json:"pur"`
	UserID  string `json:"id,omitempty"`
	Email   string `json:"email,omitempty"`
	Realm   string `json:"realm,omitempty"`
	jwt.RegisteredClaims
}

// URLTokenCodec issues emailed-link tokens. Each purpose signs with its own
// derived key, so a verification token never decodes on the reset path.
type URLTokenCodec struct {
	keys map[domain.TokenPurpose][]byte
	ttls map[domain.TokenPurpose]time.Duration
	now  func() time.Time
}

var _ port.URLTokenCodec = (*URLTokenCodec)(nil)

// NewURLTokenCodec derives one signing key per purpose in ttls. A zero TTL issues tokens without expiry.
func NewURLTokenCodec(secret string, ttls map[domain.TokenPurpose]time.Duration) (*URLTokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretMissing
	}

	codec := &URLTokenCodec{
		keys: make(map[domain.TokenPurpose][]byte, len(ttls)),
		ttls: make(map[domain.TokenPurpose]time.Duration, len(ttls)),
		now:  time.Now,
	}
	for purpose, ttl := range ttls {
		key, err := deriveKey([]byte(secret), "url-token:"+string(purpose), 32)
		if err != nil {
			return nil, err
		}
		codec.keys[purpose] = key
		codec.ttls[purpose] = ttl
	}
	return codec, nil
}

// WithClock overrides the time source, primarily for tests.
func (c *URLTokenCodec) WithClock(now func() time.Time) *URLTokenCodec {
	if now != nil {
		c.now = now
	}
	return c
}

// Encode signs claims under the key of claims.Purpose.
func (c *URLTokenCodec) Encode(claims domain.URLTokenClaims) (string, error) {
	key, ok := c.keys[claims.Purpose]
	if !ok {
		return "", fmt.Errorf("url token: unknown purpose %q", claims.Purpose)
	}

	issuedAt := jwt.NewNumericDate(c.now())
	wire := urlTokenClaims{
		Purpose: string(claims.Purpose),
		UserID:  claims.UserID,
		Email:   claims.Email,
		Realm:   claims.Realm,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: issuedAt,
		},
	}
	if ttl := c.ttls[claims.Purpose]; ttl > 0 {
		wire.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(signingMethod, wire).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign url token: %w", err)
	}
	return signed, nil
}

// Decode validates token for purpose. Bad signatures, foreign purposes and
// malformed input yield ErrInvalidToken; elapsed tokens yield ErrExpiredToken.
func (c *URLTokenCodec) Decode(token string, purpose domain.TokenPurpose) (domain.URLTokenClaims, error) {
	key, ok := c.keys[purpose]
	if !ok {
		return domain.URLTokenClaims{}, fmt.Errorf("%w: unknown purpose %q", domain.ErrInvalidToken, purpose)
	}

	var wire urlTokenClaims
	if err := parseHS256(token, key, c.now, &wire, false); err != nil {
		return domain.URLTokenClaims{}, err
	}
	if wire.Purpose != string(purpose) {
		return domain.URLTokenClaims{}, domain.ErrInvalidToken
	}

	return domain.URLTokenClaims{
		Purpose: purpose,
		UserID:  wire.UserID,
		Email:   wire.Email,
		Realm:   wire.Realm,
	}, nil
}
