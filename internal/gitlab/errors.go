package gitlab

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// RateLimitError reports a server-imposed throughput cap: a 429 response or
// an exhausted quota header. ResetAt is when the quota replenishes.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("gitlab: rate limited, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// APIError represents a non-2xx GitLab API response.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gitlab: API error %d: %s (%s)", e.StatusCode, e.Message, e.URL)
}

// IsRateLimited checks whether err carries a rate-limit signal.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsNotFound checks whether err is a 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// IsRetryable reports whether the operation that produced err may be retried:
// rate limits, 5xx responses, timeouts and connection resets. Any other 4xx
// is a permanent request error and must fail immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimited(err) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}
