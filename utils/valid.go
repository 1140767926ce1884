// utils/valid.go
package utils

import (
	"errors"
	"regexp"
	"strings"
)

// msisdnRegex is the provider's required subscriber-number format: country
// code 961 followed by a 7 or 8 digit subscriber number, no plus sign on the
// wire
var msisdnRegex = regexp.MustCompile(`^961\d{7,8}$`)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// SanitizeMsisdn normalizes a phone number into the provider's subscriber
// format and validates it
func SanitizeMsisdn(phone string) (string, error) {
	phone = regexp.MustCompile(`[^\d]`).ReplaceAllString(strings.TrimSpace(phone), "")
	if phone == "" {
		return "", errors.New("phone number is required")
	}

	// Accept local numbers and prefix the country code
	if !strings.HasPrefix(phone, "961") {
		phone = "961" + strings.TrimPrefix(phone, "0")
	}

	if !msisdnRegex.MatchString(phone) {
		return "", errors.New("phone number does not match the provider subscriber format")
	}
	return phone, nil
}

// SanitizeEmail sanitizes and validates an email address
func SanitizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRegex.MatchString(email) {
		return "", errors.New("invalid email format")
	}
	return email, nil
}

// TruncateDescription shortens a charge description to the provider's
// maximum length without splitting a multi-byte character
func TruncateDescription(description string, maxLen int) string {
	runes := []rune(strings.TrimSpace(description))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen])
}
