package domain

import (
	"errors"
	"strings"
)

var ErrInvalidPhone = errors.New("invalid phone number format")

// NormalizePhone canonicalizes a Russian phone number to +7XXXXXXXXXX.
// Accepted inputs: 8XXXXXXXXXX, 7XXXXXXXXXX, bare 10 digits, with any
// punctuation/spacing in between.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 11 && digits[0] == '8':
		digits = "7" + digits[1:]
	case len(digits) == 11 && digits[0] == '7':
		// already canonical
	case len(digits) == 10:
		digits = "7" + digits
	default:
		return "", ErrInvalidPhone
	}
	return "+" + digits, nil
}

// NormalizeEmail lowercases and trims an email address. Empty stays empty.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
