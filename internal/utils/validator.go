package utils

import (
	"regexp"
	"strings"
	"unicode"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

var otpRegex = regexp.MustCompile(`^[0-9]{6}$`)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores anything past 72 bytes
)

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(strings.TrimSpace(email))
}

// ValidateOTPFormat reports whether code looks like a 6-digit one-time code
func ValidateOTPFormat(code string) bool {
	return otpRegex.MatchString(code)
}

// PasswordFailures lists every strength rule the password breaks.
// An empty result means the password is acceptable.
func PasswordFailures(password string) []string {
	var failures []string

	if len(password) < minPasswordLength {
		failures = append(failures, "password must be at least 8 characters long")
	}
	if len(password) > maxPasswordLength {
		failures = append(failures, "password must be at most 72 bytes long")
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}

	if !hasUpper {
		failures = append(failures, "password must contain an uppercase letter")
	}
	if !hasLower {
		failures = append(failures, "password must contain a lowercase letter")
	}
	if !hasNumber {
		failures = append(failures, "password must contain a number")
	}

	return failures
}

// ValidatePassword validates a password
// Minimum 8 characters, at least one uppercase letter, one lowercase letter, one number
func ValidatePassword(password string) bool {
	return len(PasswordFailures(password)) == 0
}

// SanitizeEmail sanitizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeIdentifier is the canonical key for lockout tracking
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
