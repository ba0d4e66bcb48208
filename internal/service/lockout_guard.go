package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/internal/repository"
	"github.com/prperemyshlev/care-auth/internal/utils"
	"github.com/prperemyshlev/care-auth/pkg/observability"
	"go.uber.org/zap"
)

// GuardOptions controls how the guard talks to its store
type GuardOptions struct {
	// StoreTimeout bounds every single store call
	StoreTimeout time.Duration
	// StoreRetries is the number of extra tries after the first failure
	StoreRetries int
	// FailOpen lets logins through when the lock state cannot be read.
	// The default (false) rejects them with ServiceUnavailable.
	FailOpen bool
}

// DefaultGuardOptions returns the production store settings
func DefaultGuardOptions() GuardOptions {
	return GuardOptions{
		StoreTimeout: 250 * time.Millisecond,
		StoreRetries: 2,
	}
}

// LockoutGuard tracks failed logins per identifier (email or IP) in the
// shared store and locks identifiers for progressively longer periods.
type LockoutGuard struct {
	repo    repository.LoginAttemptRepository
	policy  domain.LockoutPolicy
	opts    GuardOptions
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *observability.AuthMetrics
}

func NewLockoutGuard(
	repo repository.LoginAttemptRepository,
	policy domain.LockoutPolicy,
	opts GuardOptions,
	clock clockwork.Clock,
	logger *zap.Logger,
	metrics *observability.AuthMetrics,
) *LockoutGuard {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultGuardOptions().StoreTimeout
	}
	if opts.StoreRetries < 0 {
		opts.StoreRetries = 0
	}
	return &LockoutGuard{
		repo:    repo,
		policy:  policy,
		opts:    opts,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// IsLocked reports the current lock state. An expired lock reads as unlocked
// but the attempt history stays, so the next offence escalates.
func (g *LockoutGuard) IsLocked(ctx context.Context, identifier string) (domain.LockStatus, error) {
	id := utils.NormalizeIdentifier(identifier)

	var record *domain.LoginAttempt
	err := g.withStore(ctx, func(ctx context.Context) error {
		r, err := g.repo.Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			record = nil
			return nil
		}
		record = r
		return err
	})
	if err != nil {
		return domain.LockStatus{}, fmt.Errorf("failed to read lock state: %w", err)
	}

	if record == nil || record.LockedUntil == nil {
		return domain.LockStatus{}, nil
	}

	remaining := record.LockedUntil.Sub(g.clock.Now())
	if remaining <= 0 {
		return domain.LockStatus{}, nil
	}
	return domain.LockStatus{Locked: true, RemainingSeconds: ceilSeconds(remaining)}, nil
}

// Check turns the lock state into a login decision: nil to proceed,
// AccountLocked while locked, and ServiceUnavailable when the state cannot be
// read and the guard fails closed.
func (g *LockoutGuard) Check(ctx context.Context, identifier string) error {
	status, err := g.IsLocked(ctx, identifier)
	if err != nil {
		if g.opts.FailOpen {
			g.logger.Error("lockout store unavailable, allowing login",
				zap.String("identifier", utils.MaskIdentifier(identifier)),
				zap.Error(err))
			return nil
		}
		g.logger.Error("lockout store unavailable, rejecting login",
			zap.String("identifier", utils.MaskIdentifier(identifier)),
			zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}

	if status.Locked {
		return domain.AccountLocked(time.Duration(status.RemainingSeconds) * time.Second)
	}
	return nil
}

// RecordFailedAttempt counts one failure and reports whether it caused a lock
func (g *LockoutGuard) RecordFailedAttempt(ctx context.Context, identifier string) (domain.AttemptResult, error) {
	id := utils.NormalizeIdentifier(identifier)
	now := g.clock.Now()
	// one id across retries, so a reply lost after the write is not counted twice
	attemptID := uuid.NewString()

	var record *domain.LoginAttempt
	err := g.withStore(ctx, func(ctx context.Context) error {
		r, err := g.repo.RecordFailure(ctx, id, attemptID, g.policy, now)
		record = r
		return err
	})
	if err != nil {
		g.logger.Error("failed to record login failure",
			zap.String("identifier", utils.MaskIdentifier(id)),
			zap.Error(err))
		return domain.AttemptResult{}, fmt.Errorf("failed to record login failure: %w", err)
	}

	result := domain.AttemptResult{
		Attempts:          record.Attempts,
		AttemptsRemaining: max(g.policy.MaxAttempts-record.Attempts, 0),
	}

	if record.Attempts >= g.policy.MaxAttempts && record.LockedUntil != nil {
		result.Locked = true
		result.LockoutSeconds = ceilSeconds(record.LockedUntil.Sub(now))

		g.metrics.Locked(ctx)
		g.logger.Warn("identifier locked",
			zap.String("identifier", utils.MaskIdentifier(id)),
			zap.Int("attempts", record.Attempts),
			zap.Int("lockout_seconds", result.LockoutSeconds))
	}

	return result, nil
}

// RecordSuccessfulLogin clears the history after a correct password
func (g *LockoutGuard) RecordSuccessfulLogin(ctx context.Context, identifier string) error {
	return g.clear(ctx, identifier, "login")
}

// Unlock is the administrative reset
func (g *LockoutGuard) Unlock(ctx context.Context, identifier string) error {
	if err := g.clear(ctx, identifier, "admin"); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	g.logger.Info("identifier unlocked", zap.String("identifier", utils.MaskIdentifier(identifier)))
	return nil
}

func (g *LockoutGuard) clear(ctx context.Context, identifier, reason string) error {
	id := utils.NormalizeIdentifier(identifier)

	err := g.withStore(ctx, func(ctx context.Context) error {
		return g.repo.Delete(ctx, id)
	})
	if err != nil {
		g.logger.Error("failed to clear login attempts",
			zap.String("identifier", utils.MaskIdentifier(id)),
			zap.String("reason", reason),
			zap.Error(err))
		return fmt.Errorf("failed to clear login attempts: %w", err)
	}
	return nil
}

// withStore runs op with a per-call timeout and a short bounded retry
func (g *LockoutGuard) withStore(ctx context.Context, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.opts.StoreTimeout)
		defer cancel()
		return struct{}{}, op(callCtx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(g.opts.StoreRetries+1)),
	)
	return err
}

func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
