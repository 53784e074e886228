package datafeed

import (
	"errors"
	"time"
)

const maxBackoffShift = 16

// Backoff doubles the delay on every consecutive failure up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Initial: time.Second, Max: 30 * time.Second}
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := min(attempt-1, maxBackoffShift)
	delay := b.Initial << shift
	if b.Max > 0 && (delay > b.Max || delay <= 0) {
		return b.Max
	}
	return delay
}

// retryDelay picks the backoff delay, stretched to honor a provider's
// Retry-After hint.
func retryDelay(b Backoff, attempt int, err error) time.Duration {
	delay := b.Delay(attempt)
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) && rateErr.RetryAfter > delay {
		return rateErr.RetryAfter
	}
	return delay
}
