package fetcher

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glsafe/glsafe/internal/gitlab"
	"github.com/glsafe/glsafe/internal/models"
)

func testRetryPolicy() models.RetryConfig {
	return models.RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
	}
}

func TestRetryState_ExponentialBackoff(t *testing.T) {
	state := newRetryState(models.RetryConfig{
		MaxAttempts: 10,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
	})
	err := &gitlab.APIError{StatusCode: 500}
	now := time.Now()

	var waits []time.Duration
	for i := 0; i < 6; i++ {
		wait, ok := state.next(err, now)
		require.True(t, ok)
		waits = append(waits, wait)
	}

	// Doubling, capped at MaxDelay.
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}, waits)
}

func TestRetryState_Exhaustion(t *testing.T) {
	state := newRetryState(models.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})
	err := &gitlab.APIError{StatusCode: 500}
	now := time.Now()

	_, ok := state.next(err, now)
	assert.True(t, ok)
	_, ok = state.next(err, now)
	assert.True(t, ok)
	_, ok = state.next(err, now)
	assert.False(t, ok)
	assert.Equal(t, 3, state.attempt)
}

func TestRetryState_RateLimitOverridesBackoff(t *testing.T) {
	state := newRetryState(testRetryPolicy())
	now := time.Now()
	rl := &gitlab.RateLimitError{ResetAt: now.Add(30 * time.Second)}

	wait, ok := state.next(rl, now)

	require.True(t, ok)
	assert.Equal(t, 30*time.Second, wait)
}

func TestRetryState_RateLimitResetReplacesBackoff(t *testing.T) {
	state := newRetryState(models.RetryConfig{
		MaxAttempts: 10,
		BaseDelay:   10 * time.Second,
		MaxDelay:    time.Minute,
	})
	now := time.Now()

	// The server reset wins even when the exponential schedule is longer.
	wait, ok := state.next(&gitlab.RateLimitError{ResetAt: now.Add(time.Second)}, now)
	require.True(t, ok)
	assert.Equal(t, time.Second, wait)

	// A fresh quota restarts the schedule at the base delay.
	wait, ok = state.next(&gitlab.APIError{StatusCode: 500}, now)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, wait)
}

func TestRetryState_RateLimitWithoutResetKeepsBackoff(t *testing.T) {
	state := newRetryState(testRetryPolicy())
	now := time.Now()

	wait, ok := state.next(&gitlab.RateLimitError{}, now)

	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, wait)
}

func fastRetryFetcher(client Client, policy models.RetryConfig) *Impl {
	throttle := gitlab.NewThrottle(10000, clock.WallClock)
	return New(zerolog.New(io.Discard), client, throttle, policy)
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	client := &mockClient{
		getJSONFunc: func(ctx context.Context, path string, query url.Values, v any) error {
			calls++
			if calls < 3 {
				return &gitlab.APIError{StatusCode: 502}
			}
			return nil
		},
	}
	s := fastRetryFetcher(client, models.RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
	})

	_, err := s.Login(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorFailsImmediately(t *testing.T) {
	calls := 0
	client := &mockClient{
		getJSONFunc: func(ctx context.Context, path string, query url.Values, v any) error {
			calls++
			return &gitlab.APIError{StatusCode: 403}
		},
	}
	s := fastRetryFetcher(client, testRetryPolicy())

	_, err := s.Login(context.Background())

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var apiErr *gitlab.APIError
	assert.ErrorAs(t, err, &apiErr)
	var fetchErr *FetchError
	assert.False(t, errors.As(err, &fetchErr))
}

func TestDo_ExhaustionReturnsFetchError(t *testing.T) {
	calls := 0
	client := &mockClient{
		getJSONFunc: func(ctx context.Context, path string, query url.Values, v any) error {
			calls++
			return &gitlab.APIError{StatusCode: 500}
		},
	}
	s := fastRetryFetcher(client, models.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	})

	_, err := s.GetProject(context.Background(), 7)

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "get project", fetchErr.Op)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Equal(t, 7, fetchErr.Ref.ID)

	// The last cause stays reachable through the wrapper.
	var apiErr *gitlab.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.StatusCode)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockClient{
		getJSONFunc: func(ctx context.Context, path string, query url.Values, v any) error {
			cancel()
			return &gitlab.APIError{StatusCode: 500}
		},
	}
	s := fastRetryFetcher(client, models.RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		MaxDelay:    time.Hour,
	})

	_, err := s.Login(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}
