package gitlab

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quotaHeader(remaining int, resetAt time.Time) http.Header {
	h := http.Header{}
	h.Set(HeaderRateRemaining, strconv.Itoa(remaining))
	h.Set(HeaderRateReset, strconv.FormatInt(resetAt.Unix(), 10))
	return h
}

func TestThrottle_Remaining(t *testing.T) {
	throttle := NewThrottle(100, clock.WallClock)

	// No quota header seen yet.
	assert.Equal(t, -1, throttle.Remaining())

	throttle.Update(quotaHeader(17, time.Now().Add(time.Minute)))
	assert.Equal(t, 17, throttle.Remaining())

	throttle.Update(quotaHeader(0, time.Now().Add(time.Minute)))
	assert.Equal(t, 0, throttle.Remaining())
}

func TestThrottle_Update_IgnoresMalformedHeaders(t *testing.T) {
	throttle := NewThrottle(100, clock.WallClock)

	h := http.Header{}
	h.Set(HeaderRateRemaining, "not-a-number")
	throttle.Update(h)

	assert.Equal(t, -1, throttle.Remaining())
}

func TestThrottle_Wait_QuotaAvailable(t *testing.T) {
	throttle := NewThrottle(1000, clock.WallClock)
	throttle.Update(quotaHeader(50, time.Now().Add(time.Minute)))

	err := throttle.Wait(context.Background())

	assert.NoError(t, err)
}

func TestThrottle_Wait_BlocksUntilReset(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	throttle := NewThrottle(1000, clk)
	throttle.Update(quotaHeader(0, clk.Now().Add(5*time.Second)))

	done := make(chan error, 1)
	go func() {
		done <- throttle.Wait(context.Background())
	}()

	// Wait must park on the clock until the reset time passes.
	err := clk.WaitAdvance(6*time.Second, time.Second, 1)
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the reset time passed")
	}
}

func TestThrottle_Wait_PastResetDoesNotBlock(t *testing.T) {
	throttle := NewThrottle(1000, clock.WallClock)
	throttle.Update(quotaHeader(0, time.Now().Add(-time.Minute)))

	err := throttle.Wait(context.Background())

	assert.NoError(t, err)
}

func TestThrottle_Wait_CancelledWhileBlocked(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	throttle := NewThrottle(1000, clk)
	throttle.Update(quotaHeader(0, clk.Now().Add(time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- throttle.Wait(ctx)
	}()

	// Let the waiter park on the clock, then cancel.
	require.NoError(t, clk.WaitAdvance(0, time.Second, 1))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Wait did not honor cancellation")
	}
}
