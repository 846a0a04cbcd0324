package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const userIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// UserIDLength is the number of characters of a generated user id.
const UserIDLength = 7

// GenerateOTPCode returns a 6-digit code drawn uniformly from [100000, 999999].
func GenerateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}

// GenerateUserID returns an opaque alphanumeric identifier.
func GenerateUserID() (string, error) {
	max := big.NewInt(int64(len(userIDAlphabet)))
	out := make([]byte, UserIDLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate user id: %w", err)
		}
		out[i] = userIDAlphabet[n.Int64()]
	}
	return string(out), nil
}
