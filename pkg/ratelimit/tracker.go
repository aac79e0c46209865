package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cb_rate_limit_remaining",
		Help: "Request budget last reported by the API",
	})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cb_rate_limit_waits_total",
		Help: "Requests delayed until a shared rate limit reset",
	})

	rateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cb_rate_limit_hits_total",
		Help: "429 responses recorded",
	})
)

// keyPrefix namespaces the per-host state key.
const keyPrefix = "cb:rate_limit:"

// Tracker records rate limit state per API host in Redis and gates requests.
type Tracker struct {
	redis  *redis.Client
	key    string
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker for host. It panics if redisClient is nil.
func NewTracker(redisClient *redis.Client, host string, logger zerolog.Logger) *Tracker {
	if redisClient == nil {
		panic("ratelimit: redis client is nil")
	}
	return &Tracker{
		redis:  redisClient,
		key:    keyPrefix + host,
		logger: logger,
		now:    time.Now,
	}
}

// GetState returns the recorded state, or a healthy state if none exists.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	data, err := t.redis.Get(ctx, t.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return healthy(t.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		t.redis.Del(ctx, t.key)
		return healthy(t.now()), nil
	}
	return &state, nil
}

// Update records the rate limit information of a response. Responses without
// rate limit information leave the stored state alone.
func (t *Tracker) Update(ctx context.Context, status int, header http.Header) error {
	now := t.now()
	state, ok := FromResponse(status, header, now)
	if !ok {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal rate limit state: %w", err)
	}

	// The state expires a little after the reset so a stale block never sticks.
	ttl := state.TimeUntilReset(now) + time.Second
	if err := t.redis.Set(ctx, t.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	if state.Remaining >= 0 {
		rateLimitRemaining.Set(float64(state.Remaining))
	}
	if state.Limited {
		rateLimitHitsTotal.Inc()
		t.logger.Warn().
			Time("reset_at", state.ResetAt).
			Msg("Rate limited, blocking requests until reset")
	} else {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit state updated")
	}
	return nil
}

// Wait blocks while the shared state says requests must pause. It returns
// the context error if ctx ends first, or a Redis error without waiting.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		return err
	}

	now := t.now()
	if !state.Blocked(now) {
		return nil
	}

	wait := state.TimeUntilReset(now)
	rateLimitWaitsTotal.Inc()
	t.logger.Warn().
		Dur("wait", wait).
		Int("remaining", state.Remaining).
		Msg("Waiting for rate limit reset")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset clears the recorded state.
func (t *Tracker) Reset(ctx context.Context) error {
	return t.redis.Del(ctx, t.key).Err()
}
