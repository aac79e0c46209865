package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cb_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"reason"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cb_retry_backoff_seconds",
		Help:    "Backoff duration before retries by error class",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"reason"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cb_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"reason"})
)

// RetryConfig controls opt-in retries. Every attempt builds and signs a new
// request.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first. Zero disables retries.
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	BackoffMultiplier float64
}

// DefaultRetryConfig returns retries disabled with sensible backoff values
// for callers that only raise MaxRetries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        0,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Enabled reports whether any retry may happen.
func (r RetryConfig) Enabled() bool {
	return r.MaxRetries > 0
}

// backoffFor returns the wait before retry number attempt (1-based).
// A clock skew retry goes out immediately; rate limits start slower.
func (r RetryConfig) backoffFor(class ErrorClass, attempt int) time.Duration {
	if class == ErrorClassClockSkew {
		return 0
	}

	backoff := r.InitialBackoff
	if class == ErrorClassRateLimit {
		backoff *= 2
	}
	mult := r.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * mult)
		if r.MaxBackoff > 0 && backoff > r.MaxBackoff {
			backoff = r.MaxBackoff
			break
		}
	}
	if r.MaxBackoff > 0 && backoff > r.MaxBackoff {
		backoff = r.MaxBackoff
	}
	return backoff
}

// attemptFunc runs one attempt. It returns a non-empty class together with a
// non-nil error when the attempt failed in a way that may be retried.
type attemptFunc func(attempt int) (ErrorClass, error)

// retryWithBackoff runs fn until it succeeds, fails with a class that is not
// retried, or runs out of attempts. Backoff has ±20% jitter and respects ctx.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, method string, logger zerolog.Logger, fn attemptFunc) error {
	var (
		lastErr   error
		lastClass ErrorClass
	)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		class, err := fn(attempt)
		if err == nil {
			if attempt > 0 {
				logger.Info().
					Str("error_class", string(lastClass)).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr, lastClass = err, class
		if !shouldRetry(class, method) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		retriesTotal.WithLabelValues(string(class)).Inc()
		wait := cfg.backoffFor(class, attempt+1)
		if wait > 0 {
			wait = time.Duration(float64(wait) * (0.8 + rand.Float64()*0.4))
		}
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

		logger.Debug().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			case <-timer.C:
			}
		}
	}

	retryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	logger.Warn().
		Str("error_class", string(lastClass)).
		Int("attempts", cfg.MaxRetries+1).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxRetries+1, lastErr)
}
