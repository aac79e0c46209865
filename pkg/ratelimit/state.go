// Package ratelimit shares Coinbase rate limit state between client instances
// via Redis. A 429 response, or a response reporting zero remaining requests,
// blocks every instance using the same Redis until the limit resets.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// Response headers read by the tracker.
const (
	HeaderRetryAfter = "Retry-After"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
)

const (
	// DefaultCooldown applies to a 429 without a usable Retry-After.
	DefaultCooldown = time.Second

	// MaxCooldown caps any single wait.
	MaxCooldown = time.Minute

	// epochThreshold separates a reset given as unix seconds from one given
	// as seconds until reset.
	epochThreshold = 1_000_000_000
)

// State is the last rate limit observation for one API host.
type State struct {
	// Remaining is the request budget reported by the server, -1 if unknown.
	Remaining int `json:"remaining"`

	// Limited is set when the server answered 429.
	Limited bool `json:"limited"`

	ResetAt    time.Time `json:"reset_at"`
	LastUpdate time.Time `json:"last_update"`
}

// healthy is the state assumed when nothing has been recorded.
func healthy(now time.Time) *State {
	return &State{Remaining: -1, LastUpdate: now}
}

// Blocked reports whether requests must wait at now.
func (s *State) Blocked(now time.Time) bool {
	if !now.Before(s.ResetAt) {
		return false
	}
	return s.Limited || s.Remaining == 0
}

// TimeUntilReset returns the wait at now, capped at MaxCooldown. Zero if the
// reset has passed.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	switch {
	case d < 0:
		return 0
	case d > MaxCooldown:
		return MaxCooldown
	default:
		return d
	}
}

// IsStale reports whether the state is older than maxAge.
func (s *State) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// FromResponse derives a state from a response. ok is false when the
// response carries nothing worth recording.
func FromResponse(status int, header http.Header, now time.Time) (state *State, ok bool) {
	state = healthy(now)

	if v := header.Get(HeaderRemaining); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			state.Remaining = n
			ok = true
		}
	}
	if v := header.Get(HeaderReset); v != "" {
		if reset, err := parseReset(v, now); err == nil {
			state.ResetAt = reset
		}
	}

	if status == http.StatusTooManyRequests {
		state.Limited = true
		state.Remaining = 0
		if d, found := retryAfter(header.Get(HeaderRetryAfter), now); found {
			state.ResetAt = now.Add(d)
		} else if !state.ResetAt.After(now) {
			state.ResetAt = now.Add(DefaultCooldown)
		}
		return state, true
	}

	if state.Remaining == 0 && !state.ResetAt.After(now) {
		state.ResetAt = now.Add(DefaultCooldown)
	}
	return state, ok
}

// parseReset accepts unix seconds or seconds until reset.
func parseReset(v string, now time.Time) (time.Time, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if n >= epochThreshold {
		return time.Unix(n, 0), nil
	}
	return now.Add(time.Duration(n) * time.Second), nil
}

// retryAfter parses delta seconds or an HTTP date.
func retryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
