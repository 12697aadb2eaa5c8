package geographic

import (
	"fmt"
	"strings"
)

// QuickFactsFIPS builds the concatenated code the Census QuickFacts site uses:
// a state is its own FIPS, a county is state+county, a city is the state's
// code followed by the place FIPS.
func QuickFactsFIPS(kind EntityType, stateFIPS, fips string) string {
	switch kind {
	case State:
		return fips
	case County, City:
		return stateFIPS + fips
	default:
		return fips
	}
}

// Slug is the public identifier placed in boundary feature properties.
// States use their lower-case postal abbreviation; counties and cities use
// their QuickFacts code; MSAs use their CBSA code.
func Slug(kind EntityType, abbreviation, qfFIPS string) string {
	if kind == State && abbreviation != "" {
		return strings.ToLower(abbreviation)
	}
	return qfFIPS
}

// PadFIPS left-pads a numeric code to the width Census uses for the tier.
func PadFIPS(kind EntityType, code string) (string, error) {
	width := map[EntityType]int{State: 2, County: 3, City: 5, MSA: 5}[kind]
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("empty %s fips", kind)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%s fips %q is not numeric", kind, code)
		}
	}
	if len(code) > width {
		return "", fmt.Errorf("%s fips %q longer than %d digits", kind, code, width)
	}
	return strings.Repeat("0", width-len(code)) + code, nil
}
