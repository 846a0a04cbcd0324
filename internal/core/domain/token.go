package domain

import "time"

// TokenPurpose tags URL-safe tokens so one flow cannot redeem another flow's token.
type TokenPurpose string

const (
	TokenPurposeEmailVerify   TokenPurpose = "email-verify"
	TokenPurposePasswordReset TokenPurpose = "password-reset"
)

// SessionClaims is the payload carried by a session token.
type SessionClaims struct {
	UserID string
	Email  string
	Realm  string
	// JTI is the revocation identifier, unique per issuance.
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// URLTokenClaims is the payload of verification and password reset links.
type URLTokenClaims struct {
	Purpose TokenPurpose
	UserID  string
	Email   string
	Realm   string
}

// OTPLength is the number of digits of a phone one-time code.
const OTPLength = 6
