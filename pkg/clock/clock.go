// Package clock tracks the skew between the local wall clock and the
// exchange's clock so signed timestamps fall inside the server's window.
package clock

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for clock synchronization.
var (
	clockSkewSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cb_clock_skew_seconds",
		Help: "Last observed server minus local clock difference in seconds",
	})

	clockObservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cb_clock_observations_total",
		Help: "Server time observations by source",
	}, []string{"source"})
)

// Observation sources.
const (
	SourceRejection = "rejection"
	SourcePoll      = "poll"
	SourceManual    = "manual"
)

// Sync holds the current skew estimate for one client instance. The skew is
// a single atomically replaced value: the last observation wins and concurrent
// callers never block each other. The zero value is not usable; use New.
type Sync struct {
	skew atomic.Int64 // nanoseconds, server minus local
	now  func() time.Time
}

// New returns a Sync with zero skew reading the local wall clock.
func New() *Sync {
	return NewWithClock(time.Now)
}

// NewWithClock returns a Sync that reads local time from now (for testing).
func NewWithClock(now func() time.Time) *Sync {
	return &Sync{now: now}
}

// Now returns local wall clock time adjusted by the current skew.
func (s *Sync) Now() time.Time {
	return s.now().Add(s.Skew())
}

// Skew returns the current server minus local estimate.
func (s *Sync) Skew() time.Duration {
	return time.Duration(s.skew.Load())
}

// Observe replaces the skew with serverTime minus local time. No averaging:
// the server clock is authoritative.
func (s *Sync) Observe(serverTime time.Time) time.Duration {
	return s.ObserveFrom(SourceManual, serverTime)
}

// ObserveFrom is Observe with the observation source recorded in metrics.
func (s *Sync) ObserveFrom(source string, serverTime time.Time) time.Duration {
	skew := serverTime.Sub(s.now())
	s.skew.Store(int64(skew))
	clockSkewSeconds.Set(skew.Seconds())
	clockObservationsTotal.WithLabelValues(source).Inc()
	return skew
}

// Reset drops the estimate back to zero.
func (s *Sync) Reset() {
	s.skew.Store(0)
	clockSkewSeconds.Set(0)
}
