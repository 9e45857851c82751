package httpstage

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/user/redeem-checker/internal/entity"
)

// RetryPolicy decides which HTTP outcomes are attempted again.
type RetryPolicy struct {
	// RetryableStatuses are retried whatever the verdict.
	RetryableStatuses []int
	// BlockedRetryStatuses are retried when the verdict is blocked.
	BlockedRetryStatuses []int
	// RetryBlockedOtherStatus retries blocked verdicts with any other
	// status code.
	RetryBlockedOtherStatus bool
	MaxBackoff              time.Duration
}

// DefaultRetryPolicy returns the policy used unless configured otherwise.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		RetryableStatuses:    []int{408, 425, 429, 500, 502, 503, 504},
		BlockedRetryStatuses: []int{403, 429, 503},
		MaxBackoff:           8 * time.Second,
	}
}

// Retryable reports whether another attempt could change the outcome.
// CAPTCHA blocks are terminal.
func (p RetryPolicy) Retryable(o entity.Outcome) bool {
	if o.Status == entity.ResultBlocked && o.Captcha {
		return false
	}
	if o.Status == entity.ResultError {
		return true
	}
	if o.HTTPStatus != 0 && slices.Contains(p.RetryableStatuses, o.HTTPStatus) {
		return true
	}
	if o.Status == entity.ResultBlocked {
		return slices.Contains(p.BlockedRetryStatuses, o.HTTPStatus) || p.RetryBlockedOtherStatus
	}
	return false
}

// Backoff returns the pause after the given attempt number:
// 0.75s per attempt plus up to 1s of jitter, capped at MaxBackoff.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := time.Duration(attempt)*750*time.Millisecond + time.Duration(rand.Float64()*float64(time.Second))
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Jitter spreads a configured delay by ±20%.
func Jitter(delayMS int) time.Duration {
	factor := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(delayMS) * factor * float64(time.Millisecond))
}
