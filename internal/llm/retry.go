package llm

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls how the client retries transient invocation failures.
// It is configuration, shared read-only across calls.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	BaseBackoff time.Duration // backoff before the second attempt
	Multiplier  float64       // exponential growth factor
	MaxBackoff  time.Duration // cap applied before jitter
	Jitter      time.Duration // uniform random offset added to each backoff
	Retryable   func(*InvokeError) bool
}

// DefaultRetryPolicy retries connection failures and timeouts up to three
// attempts with a jittered exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  5 * time.Second,
		Jitter:      250 * time.Millisecond,
		Retryable:   (*InvokeError).Transient,
	}
}

// Backoff returns the sleep before the given attempt (attempt 1 is the first
// call and never sleeps). The jitter spreads out herds of generators retrying
// against the same endpoint at once.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := time.Duration(float64(p.BaseBackoff) * math.Pow(p.Multiplier, float64(attempt-2)))
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return d
}

// ShouldRetry reports whether another attempt is allowed after err on the
// given attempt number.
func (p RetryPolicy) ShouldRetry(err *InvokeError, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	if p.Retryable == nil {
		return err.Transient()
	}
	return p.Retryable(err)
}
