package domain

import "time"

// LoginAttempt is the failure history tracked per identifier (email or IP)
type LoginAttempt struct {
	Identifier  string
	Attempts    int
	LockedUntil *time.Time
	LastAttempt time.Time
}

// LockoutPolicy holds the progressive lockout parameters
type LockoutPolicy struct {
	MaxAttempts  int
	BaseDuration time.Duration
	Window       time.Duration
	Cap          time.Duration
	// RecordTTL bounds how long an idle record survives in the store
	RecordTTL time.Duration
}

// DefaultLockoutPolicy returns the marketplace defaults
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts:  5,
		BaseDuration: 15 * time.Minute,
		Window:       60 * time.Minute,
		Cap:          24 * time.Hour,
		RecordTTL:    24 * time.Hour,
	}
}

// LockoutDuration returns how long an identifier is locked after reaching
// the given attempt count. Each completed cycle of MaxAttempts doubles the
// base duration, never exceeding Cap.
func (p LockoutPolicy) LockoutDuration(attempts int) time.Duration {
	if p.MaxAttempts <= 0 || attempts < p.MaxAttempts {
		return 0
	}

	cycle := attempts / p.MaxAttempts
	d := p.BaseDuration
	for i := 1; i < cycle; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// LockStatus is the answer to "is this identifier locked right now"
type LockStatus struct {
	Locked           bool
	RemainingSeconds int
}

// AttemptResult describes the state after a failed attempt was recorded
type AttemptResult struct {
	Locked            bool
	Attempts          int
	AttemptsRemaining int
	LockoutSeconds    int
}
