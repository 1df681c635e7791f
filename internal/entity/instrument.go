package entity

import (
	"fmt"
	"regexp"
	"strings"
)

var tickerPattern = regexp.MustCompile(`^[A-Z0-9]{3,15}$`)

// NormalizeTicker trims and upper-cases a raw instrument identifier.
func NormalizeTicker(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidateTicker normalizes raw and checks it against the identifier rule.
func ValidateTicker(raw string) (string, error) {
	ticker := NormalizeTicker(raw)
	if !tickerPattern.MatchString(ticker) {
		return "", fmt.Errorf("%w: %q must be 3-15 uppercase alphanumeric characters", ErrInvalidIdentifier, raw)
	}

	return ticker, nil
}
