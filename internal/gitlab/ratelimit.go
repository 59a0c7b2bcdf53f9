package gitlab

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/time/rate"
)

// Throttle combines proactive request pacing with reactive quota tracking
// from RateLimit-* response headers. When the remaining quota reaches zero,
// Wait blocks until the server-announced reset time.
type Throttle struct {
	mu        sync.Mutex
	remaining int
	resetAt   time.Time
	tracked   bool

	bucket *rate.Limiter
	clk    clock.Clock
}

// NewThrottle creates a throttle pacing requests at rps requests per second.
func NewThrottle(rps float64, clk clock.Clock) *Throttle {
	if rps <= 0 {
		rps = 1
	}
	return &Throttle{
		bucket: rate.NewLimiter(rate.Limit(rps), 1),
		clk:    clk,
	}
}

// Wait blocks until it is safe to issue the next request.
func (t *Throttle) Wait(ctx context.Context) error {
	if err := t.bucket.Wait(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	exhausted := t.tracked && t.remaining == 0
	resetAt := t.resetAt
	t.mu.Unlock()

	if exhausted && t.clk.Now().Before(resetAt) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.clk.After(resetAt.Sub(t.clk.Now())):
		}
	}
	return nil
}

// Update records quota state from response headers.
func (t *Throttle) Update(header http.Header) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if remaining := header.Get(HeaderRateRemaining); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			t.remaining = val
			t.tracked = true
		}
	}
	if reset := header.Get(HeaderRateReset); reset != "" {
		if unix, err := strconv.ParseInt(reset, 10, 64); err == nil {
			t.resetAt = time.Unix(unix, 0)
		}
	}
}

// Remaining returns the last observed remaining quota, or -1 when no quota
// header has been seen yet.
func (t *Throttle) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tracked {
		return -1
	}
	return t.remaining
}
