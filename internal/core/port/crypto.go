package port

import "github.com/arklim/realm-auth-service/internal/core/domain"

// PasswordHasher hashes and verifies secrets.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// PasswordPolicyValidator enforces password strength requirements.
type PasswordPolicyValidator interface {
	Validate(password string) error
}

// Cipher encrypts values at rest in the cache.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// SessionTokenIssuer issues and validates signed session and one-time-code tokens.
type SessionTokenIssuer interface {
	IssueSessionToken(claims domain.SessionClaims) (string, domain.SessionClaims, error)
	ValidateSessionToken(token string) (domain.SessionClaims, error)
	IssueOTPToken(code string) (string, error)
	ValidateOTPToken(token string) (string, error)
}

// URLTokenCodec issues purpose-tagged, URL-safe tokens for emailed links.
type URLTokenCodec interface {
	Encode(claims domain.URLTokenClaims) (string, error)
	Decode(token string, purpose domain.TokenPurpose) (domain.URLTokenClaims, error)
}
