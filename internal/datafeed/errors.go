package datafeed

import (
	"errors"
	"fmt"
	"time"
)

// TransientFetchError is a network, timeout or upstream failure. The feed
// keeps retrying with backoff and reports it out of band.
type TransientFetchError struct {
	Provider string
	Symbol   string
	Err      error
}

func (e *TransientFetchError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("%s: transient fetch error: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: transient fetch error for %s: %v", e.Provider, e.Symbol, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// AuthError means the provider rejected the API key. It is fatal and ends
// every affected subscription.
type AuthError struct {
	Provider string
	Reason   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Provider, e.Reason)
}

// RateLimitError means the provider quota is exhausted. The feed backs off for
// at least RetryAfter and the symbol is shown as degraded meanwhile.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limit exceeded, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limit exceeded", e.Provider)
}

func IsFatal(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

func IsRateLimited(err error) bool {
	var rateErr *RateLimitError
	return errors.As(err, &rateErr)
}

// classify wraps untyped errors from a source as transient.
func classify(provider, symbol string, err error) error {
	var (
		authErr      *AuthError
		rateErr      *RateLimitError
		transientErr *TransientFetchError
	)
	if errors.As(err, &authErr) || errors.As(err, &rateErr) || errors.As(err, &transientErr) {
		return err
	}
	return &TransientFetchError{Provider: provider, Symbol: symbol, Err: err}
}
