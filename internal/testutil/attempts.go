package testutil

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/internal/repository"
)

// ErrStoreDown is what BrokenAttemptStore returns
var ErrStoreDown = errors.New("store unreachable")

// BrokenAttemptStore fails every call and counts them
type BrokenAttemptStore struct {
	Calls atomic.Int32
}

var _ repository.LoginAttemptRepository = (*BrokenAttemptStore)(nil)

func (b *BrokenAttemptStore) Get(context.Context, string) (*domain.LoginAttempt, error) {
	b.Calls.Add(1)
	return nil, ErrStoreDown
}

func (b *BrokenAttemptStore) RecordFailure(context.Context, string, string, domain.LockoutPolicy, time.Time) (*domain.LoginAttempt, error) {
	b.Calls.Add(1)
	return nil, ErrStoreDown
}

func (b *BrokenAttemptStore) Delete(context.Context, string) error {
	b.Calls.Add(1)
	return ErrStoreDown
}

// FlakyReplyStore applies the first RecordFailure to the wrapped store and then reports a
// timeout, as if the reply were lost after the write.
type FlakyReplyStore struct {
	repository.LoginAttemptRepository
	Calls atomic.Int32
}

func (f *FlakyReplyStore) RecordFailure(ctx context.Context, identifier, attemptID string, policy domain.LockoutPolicy, now time.Time) (*domain.LoginAttempt, error) {
	rec, err := f.LoginAttemptRepository.RecordFailure(ctx, identifier, attemptID, policy, now)
	if f.Calls.Add(1) == 1 && err == nil {
		return nil, context.DeadlineExceeded
	}
	return rec, err
}
