package sicap

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/award-digest/internal/award"
)

// Retry defaults for the award portal, which is slow and frequently times out.
const (
	DefaultMaxAttempts = 4
	DefaultBackoffBase = 2 * time.Second
)

// RetryPolicy decides whether and when a failed attempt is repeated.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// LinearRetryPolicy waits base*attempt between attempts, so delays strictly increase.
type LinearRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

// NewLinearRetryPolicy builds a policy; non-positive arguments fall back to defaults.
func NewLinearRetryPolicy(maxAttempts int, baseDelay time.Duration) *LinearRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBackoffBase
	}
	return &LinearRetryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// MaxAttempts reports the attempt budget.
func (p *LinearRetryPolicy) MaxAttempts() int { return p.maxAttempts }

// ShouldRetry retries transport failures while budget remains. Caller
// cancellation and malformed responses are final.
func (p *LinearRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var malformed *award.MalformedResponseError
	if errors.As(err, &malformed) {
		return false
	}
	var transport *award.TransportError
	return errors.As(err, &transport)
}

// Backoff returns the wait before attempt+1.
func (p *LinearRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.baseDelay * time.Duration(attempt)
}
