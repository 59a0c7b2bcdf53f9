package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glsafe/glsafe/internal/gitlab"
	"github.com/glsafe/glsafe/internal/models"
)

// FetchError reports an operation whose retries were exhausted. It carries
// the last underlying cause and never crosses a task boundary: the scheduler
// records it into the task's result.
type FetchError struct {
	Op       string
	Ref      models.ResourceRef
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// retryState tracks one in-flight operation's attempt count and next backoff
// delay. It is owned by the do call that created it and discarded on success
// or final failure.
type retryState struct {
	policy  models.RetryConfig
	attempt int
	delay   time.Duration
}

func newRetryState(policy models.RetryConfig) *retryState {
	return &retryState{policy: policy, delay: policy.BaseDelay}
}

// next records a failed attempt and returns the wait before the following
// one. A rate-limit signal replaces the exponential schedule with the
// server-indicated reset interval and restarts the schedule: the quota is
// fresh once it elapses. ok is false once attempts are exhausted.
func (s *retryState) next(err error, now time.Time) (wait time.Duration, ok bool) {
	s.attempt++
	if s.attempt >= s.policy.MaxAttempts {
		return 0, false
	}

	wait = s.delay
	s.delay *= 2
	if s.policy.MaxDelay > 0 && s.delay > s.policy.MaxDelay {
		s.delay = s.policy.MaxDelay
	}

	var rl *gitlab.RateLimitError
	if errors.As(err, &rl) {
		if until := rl.ResetAt.Sub(now); until > 0 {
			wait = until
			s.delay = s.policy.BaseDelay
		}
	}
	return wait, true
}

// do runs call under the retry policy. Transient failures back off and retry;
// permanent ones return immediately; exhaustion returns a FetchError.
func (s *Impl) do(ctx context.Context, op string, ref models.ResourceRef, call func(context.Context) error) error {
	state := newRetryState(s.retry)
	for {
		if err := s.throttle.Wait(ctx); err != nil {
			return err
		}

		err := call(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !gitlab.IsRetryable(err) {
			return err
		}

		wait, ok := state.next(err, s.clk.Now())
		if !ok {
			return &FetchError{Op: op, Ref: ref, Attempts: state.attempt, Err: err}
		}

		s.logger.Warn().
			Str("op", op).
			Int("attempt", state.attempt).
			Dur("backoff", wait).
			Err(err).
			Msg("transient failure, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clk.After(wait):
		}
	}
}
