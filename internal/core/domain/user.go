package domain

import (
	"strings"
	"time"
)

// Realm describes an isolated user population served by the same code paths.
type Realm struct {
	Name           string
	Table          string
	CacheNamespace string
	RoutePrefix    string
}

// NewRealm derives storage, cache and routing names from the realm name.
func NewRealm(name string) Realm {
	name = strings.TrimSpace(name)
	lower := strings.ToLower(name)
	return Realm{
		Name:           name,
		Table:          lower + "_users",
		CacheNamespace: lower,
		RoutePrefix:    "/" + name,
	}
}

// User is the persisted credential record of a realm.
type User struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	CountryCode   string    `json:"country_code"`
	Country       string    `json:"country"`
	PasswordHash  string    `json:"password_hash"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Profile carries the registration input of a new user.
type Profile struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	CountryCode string
	Password    string
}

// NormalizeEmail returns the canonical form used for lookups and filter membership.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
