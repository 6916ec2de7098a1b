// Package phone normalizes US phone numbers to E.164.
package phone

import (
	"fmt"
	"strings"
	"unicode"
)

// Normalize converts a US phone number to E.164 (+1XXXXXXXXXX).
// Ten-digit numbers gain the +1 country code; eleven digits starting
// with 1 gain a plus. Anything else, such as an international number,
// is kept as entered so it still matches on later lookups.
func Normalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("phone number is empty")
	}

	var digits strings.Builder
	for _, r := range trimmed {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}

	switch d := digits.String(); {
	case len(d) == 10:
		return "+1" + d, nil
	case len(d) == 11 && d[0] == '1':
		return "+" + d, nil
	default:
		return trimmed, nil
	}
}
