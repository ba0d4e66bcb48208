package service

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rdb, _ := newTestRedis(t)
	clock := clockwork.NewFakeClockAt(testStart)
	limiter := NewRateLimiter(rdb, clock)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Allow(bg, "login:203.0.113.7", 3, time.Minute))
		clock.Advance(10 * time.Second)
	}

	remaining, err := limiter.Remaining(bg, "login:203.0.113.7", 3, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	err = limiter.Allow(bg, "login:203.0.113.7", 3, time.Minute)
	var limited *RateLimitError
	require.True(t, errors.As(err, &limited))
	assert.Equal(t, 30*time.Second, limited.RetryAfter)

	// other keys are independent
	assert.NoError(t, limiter.Allow(bg, "login:198.51.100.1", 3, time.Minute))

	// the oldest request leaves the window
	clock.Advance(31 * time.Second)
	assert.NoError(t, limiter.Allow(bg, "login:203.0.113.7", 3, time.Minute))
}
