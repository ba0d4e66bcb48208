package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the stable, machine-readable class of a user-facing failure
type ErrorKind string

const (
	KindInvalidCredentials     ErrorKind = "INVALID_CREDENTIALS"
	KindAccountLocked          ErrorKind = "ACCOUNT_LOCKED"
	KindAccountInactive        ErrorKind = "ACCOUNT_INACTIVE"
	KindEmailAlreadyRegistered ErrorKind = "EMAIL_ALREADY_REGISTERED"
	KindTokenInvalid           ErrorKind = "TOKEN_INVALID"
	KindTokenExpired           ErrorKind = "TOKEN_EXPIRED"
	KindOtpInvalid             ErrorKind = "OTP_INVALID"
	KindOtpExpired             ErrorKind = "OTP_EXPIRED"
	KindOtpAttemptsExceeded    ErrorKind = "OTP_ATTEMPTS_EXCEEDED"
	KindInvalidInput           ErrorKind = "INVALID_INPUT"
	KindServiceUnavailable     ErrorKind = "SERVICE_UNAVAILABLE"
)

// Error is a recoverable failure surfaced to the caller with a stable kind.
// Two errors match under errors.Is when their kinds are equal.
type Error struct {
	Kind    ErrorKind
	Message string

	// RetryAfter is set for AccountLocked
	RetryAfter time.Duration
	// AttemptsRemaining is set for InvalidCredentials when the guard knows it
	AttemptsRemaining *int
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on kind only
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidCredentials     = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrAccountLocked          = &Error{Kind: KindAccountLocked, Message: "account temporarily locked"}
	ErrAccountInactive        = &Error{Kind: KindAccountInactive, Message: "user account is inactive"}
	ErrEmailAlreadyRegistered = &Error{Kind: KindEmailAlreadyRegistered, Message: "email is already registered"}
	ErrTokenInvalid           = &Error{Kind: KindTokenInvalid, Message: "invalid token"}
	ErrTokenExpired           = &Error{Kind: KindTokenExpired, Message: "token is expired"}
	ErrOtpInvalid             = &Error{Kind: KindOtpInvalid, Message: "invalid verification code"}
	ErrOtpExpired             = &Error{Kind: KindOtpExpired, Message: "verification code has expired"}
	ErrOtpAttemptsExceeded    = &Error{Kind: KindOtpAttemptsExceeded, Message: "too many attempts, request a new code"}
	ErrInvalidInput           = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrServiceUnavailable     = &Error{Kind: KindServiceUnavailable, Message: "service temporarily unavailable"}
)

// AccountLocked builds a lock error carrying the remaining lock time
func AccountLocked(retryAfter time.Duration) *Error {
	secs := int((retryAfter + time.Second - 1) / time.Second)
	return &Error{
		Kind:       KindAccountLocked,
		Message:    fmt.Sprintf("too many failed attempts, try again in %d seconds", secs),
		RetryAfter: retryAfter,
	}
}

// InvalidCredentials builds a credentials error that also tells how many
// attempts are left before a lock.
func InvalidCredentials(attemptsRemaining int) *Error {
	return &Error{
		Kind:              KindInvalidCredentials,
		Message:           ErrInvalidCredentials.Message,
		AttemptsRemaining: &attemptsRemaining,
	}
}

// InvalidInput builds an input error with a specific message
func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err when it is (or wraps) a domain error
func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
