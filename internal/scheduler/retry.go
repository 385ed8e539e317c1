package scheduler

import (
	"math"
	"time"

	"github.com/ilindan-dev/clinic-notifier/internal/config"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	"github.com/ilindan-dev/clinic-notifier/internal/notifiers"
)

// RetryPolicy decides whether a failed attempt is retried and when.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries three times, one minute apart and doubling, capped at an hour.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Minute,
		Multiplier: 2,
		MaxDelay:   time.Hour,
	}
}

// NewRetryPolicy builds the policy from the retry configuration section.
func NewRetryPolicy(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay,
		Multiplier: cfg.Multiplier,
		MaxDelay:   cfg.MaxDelay,
	}
}

// Backoff returns the delay before the attempt that follows retryCount failures:
// BaseDelay * Multiplier^retryCount, capped at MaxDelay.
func (p RetryPolicy) Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(retryCount))
	if p.MaxDelay > 0 && (delay > float64(p.MaxDelay) || math.IsInf(delay, 1)) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Decide converts a failed send of a notification with retryCount previous
// retries into an outcome. Permanent errors and exhausted retries fail the
// notification; everything else is rescheduled.
func (p RetryPolicy) Decide(retryCount int, sendErr error, now time.Time) model.Outcome {
	msg := sendErr.Error()
	if notifiers.IsPermanent(sendErr) || retryCount >= p.MaxRetries {
		return model.FailedOutcome(msg, now)
	}
	return model.RetryOutcome(msg, now, now.Add(p.Backoff(retryCount)))
}
