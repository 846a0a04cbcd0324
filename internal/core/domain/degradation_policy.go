package domain

import "strings"

// DegradationPolicyMode selects how revocation checks behave when the filter or cache cannot answer.
type DegradationPolicyMode string

const (
	// DegradationPolicyModeLenient treats an unanswerable revocation check as "not revoked".
	DegradationPolicyModeLenient DegradationPolicyMode = "lenient"
	// DegradationPolicyModeStrict treats an unanswerable revocation check as "revoked".
	DegradationPolicyModeStrict DegradationPolicyMode = "strict"
)

// DegradationPolicy centralises the fail-open/fail-closed decision for revocation reads.
type DegradationPolicy struct {
	mode DegradationPolicyMode
}

// NewDegradationPolicy constructs a policy, defaulting to lenient when unspecified.
func NewDegradationPolicy(mode DegradationPolicyMode) DegradationPolicy {
	if mode != DegradationPolicyModeStrict {
		mode = DegradationPolicyModeLenient
	}
	return DegradationPolicy{mode: mode}
}

// ParseDegradationPolicyMode normalises textual input into a supported policy mode.
func ParseDegradationPolicyMode(value string) DegradationPolicyMode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(DegradationPolicyModeStrict):
		return DegradationPolicyModeStrict
	default:
		return DegradationPolicyModeLenient
	}
}

// Mode returns the underlying policy mode.
func (p DegradationPolicy) Mode() DegradationPolicyMode {
	return p.mode
}

// RevokedOnFailure reports the answer to give when the revocation state is unknown.
func (p DegradationPolicy) RevokedOnFailure() bool {
	return p.mode == DegradationPolicyModeStrict
}
