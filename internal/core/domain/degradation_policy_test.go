package domain

import "testing"

func TestParseDegradationPolicyMode(t *testing.T) {
	cases := []struct {
		input        string
		wantMode     DegradationPolicyMode
		wantFailShut bool
	}{
		{input: "strict", wantMode: DegradationPolicyModeStrict, wantFailShut: true},
		{input: "  STRICT ", wantMode: DegradationPolicyModeStrict, wantFailShut: true},
		{input: "lenient", wantMode: DegradationPolicyModeLenient},
		{input: "", wantMode: DegradationPolicyModeLenient},
		{input: "fail_closed", wantMode: DegradationPolicyModeLenient},
	}

	for _, tc := range cases {
		policy := NewDegradationPolicy(ParseDegradationPolicyMode(tc.input))
		if policy.Mode() != tc.wantMode {
			t.Fatalf("%q: mode = %q, want %q", tc.input, policy.Mode(), tc.wantMode)
		}
		if policy.RevokedOnFailure() != tc.wantFailShut {
			t.Fatalf("%q: RevokedOnFailure = %v, want %v", tc.input, policy.RevokedOnFailure(), tc.wantFailShut)
		}
	}
}
