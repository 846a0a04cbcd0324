// Package geo resolves telephone dial codes to country names.
package geo

import (
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const (
	// NotRecognized is returned for dial codes that map to no country.
	NotRecognized = "Country not recognized for this code."
	// InvalidFormat is returned for dial codes that are not numeric.
	InvalidFormat = "Invalid country code format."
	// NotFound is returned when a region has no English display name.
	NotFound = "Country not found in database."

	unknownRegion       = "ZZ"
	nonGeographicRegion = "001"
)

var regionNames = display.English.Regions()

// CountryName returns the English country name for a dial code such as "91" or "+1".
// Shared dial codes resolve to their main region, so "+1" yields the United States.
func CountryName(dialCode string) string {
	code := strings.TrimPrefix(strings.TrimSpace(dialCode), "+")
	if code == "" {
		return InvalidFormat
	}
	n, err := strconv.Atoi(code)
	if err != nil || n <= 0 {
		return InvalidFormat
	}

	region := phonenumbers.GetRegionCodeForCountryCode(n)
	if region == "" || region == unknownRegion || region == nonGeographicRegion {
		return NotRecognized
	}

	r, err := language.ParseRegion(region)
	if err != nil {
		return NotRecognized
	}
	name := regionNames.Name(r)
	if name == "" {
		return NotFound
	}
	return name
}
