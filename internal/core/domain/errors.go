package domain

import "errors"

var (
	// ErrInvalidToken indicates a malformed token or a signature mismatch.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates the token is past its expiry.
	ErrExpiredToken = errors.New("token expired")
	// ErrUnauthorized covers bad credentials, revoked tokens and missing authentication.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the account email has not been verified.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates the user does not exist in the realm.
	ErrNotFound = errors.New("user not found")
	// ErrConflict indicates the email is already registered in the realm.
	ErrConflict = errors.New("email already exists")
	// ErrValidationFailed indicates malformed input or an OTP mismatch.
	ErrValidationFailed = errors.New("validation failed")
	// ErrInternal wraps store, cache and filter infrastructure failures.
	ErrInternal = errors.New("internal error")
)
