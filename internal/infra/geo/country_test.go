package geo

import "testing"

func TestCountryName(t *testing.T) {
	cases := []struct {
		name string
		code string
		want string
	}{
		{name: "india", code: "91", want: "India"},
		{name: "leading plus", code: "+44", want: "United Kingdom"},
		{name: "shared code resolves main region", code: "1", want: "United States"},
		{name: "whitespace", code: " 49 ", want: "Germany"},
		{name: "unassigned", code: "999", want: NotRecognized},
		{name: "non numeric", code: "abc", want: InvalidFormat},
		{name: "empty", code: "", want: InvalidFormat},
		{name: "negative", code: "-7", want: InvalidFormat},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CountryName(tc.code); got != tc.want {
				t.Fatalf("CountryName(%q) = %q, want %q", tc.code, got, tc.want)
			}
		})
	}
}
