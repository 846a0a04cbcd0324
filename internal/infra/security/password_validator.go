package security

import (
	"fmt"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/core/port"
)

const (
	defaultMinPasswordLength = 8
	defaultMinZxcvbnScore    = 2
)

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

// Error implements error for PasswordValidationError.
func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap lets callers match policy violations with domain.ErrValidationFailed.
func (e *PasswordValidationError) Unwrap() error {
	return domain.ErrValidationFailed
}

// PasswordRule validates a password according to a specific policy rule.
type PasswordRule interface {
	Validate(password string) error
}

// PasswordRuleFunc adapts a function to be used as a PasswordRule.
type PasswordRuleFunc func(password string) error

// Validate executes the underlying rule function.
func (f PasswordRuleFunc) Validate(password string) error {
	return f(password)
}

// PasswordValidator applies a sequence of password rules.
type PasswordValidator struct {
	rules []PasswordRule
}

var _ port.PasswordPolicyValidator = (*PasswordValidator)(nil)

// NewPasswordValidator constructs a validator with the provided rules.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordValidator{rules: copied}
}

// DefaultPasswordValidator enforces length, all four character classes, zxcvbn strength
// and, when a filter is supplied, absence from the compromised password set.
func DefaultPasswordValidator(compromised port.MembershipFilter) *PasswordValidator {
	rules := []PasswordRule{
		MinLengthRule(defaultMinPasswordLength),
		RequireCharacterClassesRule(),
		RequirePasswordStrengthRule(defaultMinZxcvbnScore),
	}
	if compromised != nil {
		rules = append(rules, NotCompromisedRule(compromised))
	}
	return NewPasswordValidator(rules...)
}

// Validate executes all rules and returns the first encountered violation.
func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return fmt.Errorf("password validator not configured")
	}
	for _, rule := range v.rules {
		if err := rule.Validate(password); err != nil {
			return err
		}
	}
	return nil
}

// MinLengthRule ensures the password has at least min characters.
func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if len([]rune(password)) < min {
			return &PasswordValidationError{
				Code:    "min_length",
				Message: fmt.Sprintf("password must be at least %d characters long", min),
			}
		}
		return nil
	})
}

// RequireCharacterClassesRule requires an upper case letter, a lower case letter, a digit and a special character.
func RequireCharacterClassesRule() PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		var hasUpper, hasLower, hasDigit, hasSpecial bool

		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				hasUpper = true
			case unicode.IsLower(r):
				hasLower = true
			case unicode.IsDigit(r):
				hasDigit = true
			case unicode.IsSymbol(r) || unicode.IsPunct(r):
				hasSpecial = true
			}
		}

		switch {
		case !hasUpper:
			return &PasswordValidationError{Code: "uppercase", Message: "password must include an uppercase letter"}
		case !hasLower:
			return &PasswordValidationError{Code: "lowercase", Message: "password must include a lowercase letter"}
		case !hasDigit:
			return &PasswordValidationError{Code: "digit", Message: "password must include a digit"}
		case !hasSpecial:
			return &PasswordValidationError{Code: "special", Message: "password must include a special character"}
		}
		return nil
	})
}

// RequirePasswordStrengthRule enforces a minimum zxcvbn score to reject weak passwords.
func RequirePasswordStrengthRule(minScore int, userInputs ...string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if minScore <= 0 {
			return nil
		}
		if minScore > 4 {
			minScore = 4
		}

		result := zxcvbn.PasswordStrength(password, userInputs)
		if result.Score >= minScore {
			return nil
		}

		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "password is too weak; choose a more complex value",
		}
	})
}

// NotCompromisedRule rejects passwords present in the compromised password filter.
// A false positive only forces the user to pick another password.
func NotCompromisedRule(filter port.MembershipFilter) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if filter.Contains(password) {
			return &PasswordValidationError{
				Code:    "compromised",
				Message: "password appears in a known breach; choose a different one",
			}
		}
		return nil
	})
}
