// Package phone normalizes free-form phone input into the transport address
// form the chat gateway expects.
package phone

import (
	"fmt"
	"strings"

	"github.com/bayy420-999/whatsapp-sender/internal/domain"
)

const (
	// countryPrefix is prepended to national-format numbers. The Indonesian
	// default is an intentional product assumption carried over as-is.
	countryPrefix = "62"

	// addressSuffix is the individual-chat address suffix of the transport.
	addressSuffix = "@c.us"
)

// NormalizeAddress converts raw phone input into a transport address:
// non-digits are stripped, a leading "0" is replaced by the country prefix,
// a number already carrying the prefix is kept, anything else gets the
// prefix prepended, and the transport suffix is appended.
func NormalizeAddress(raw string) (string, error) {
	digits := stripNonDigits(raw)
	if digits == "" {
		return "", fmt.Errorf("%w: phone %q has no digits", domain.ErrValidation, raw)
	}

	switch {
	case strings.HasPrefix(digits, "0"):
		digits = countryPrefix + digits[1:]
	case strings.HasPrefix(digits, countryPrefix):
		// already in international form
	default:
		digits = countryPrefix + digits
	}

	return digits + addressSuffix, nil
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
