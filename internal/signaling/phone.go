package signaling

import "strings"

const (
	// CountryPrefix is prepended to national numbers
	CountryPrefix = "254"
	// UnknownNumber stands in for a missing caller id
	UnknownNumber = "Unknown"
)

// NormalizeNumber strips a leading "+" and prepends the country prefix to digit
// strings longer than four characters that do not already carry it. Short
// numbers are internal extensions and are left alone.
func NormalizeNumber(raw string) string {
	n := strings.TrimSpace(raw)
	if n == "" {
		return UnknownNumber
	}
	n = strings.TrimPrefix(n, "+")
	if len(n) > 4 && isDigits(n) && !strings.HasPrefix(n, CountryPrefix) {
		return CountryPrefix + n
	}
	return n
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
