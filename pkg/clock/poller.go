package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TimeSource reports the exchange's current time, usually from a public time
// endpoint.
type TimeSource interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// Poller proactively refreshes a Sync from a TimeSource. It complements the
// reactive correction done by the transport when a request is rejected.
type Poller struct {
	sync     *Sync
	source   TimeSource
	interval time.Duration
	logger   zerolog.Logger
}

// NewPoller creates a poller. interval must be positive.
func NewPoller(sync *Sync, source TimeSource, interval time.Duration, logger zerolog.Logger) (*Poller, error) {
	if sync == nil || source == nil {
		return nil, fmt.Errorf("clock poller: sync and source are required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("clock poller: interval must be > 0 (got %s)", interval)
	}
	return &Poller{
		sync:     sync,
		source:   source,
		interval: interval,
		logger:   logger.With().Str("component", "clock-poller").Logger(),
	}, nil
}

// SyncOnce fetches the server time and stores the new skew.
// The request's round trip is split evenly around the observation.
func (p *Poller) SyncOnce(ctx context.Context) (time.Duration, error) {
	start := p.sync.now()
	serverTime, err := p.source.ServerTime(ctx)
	if err != nil {
		return p.sync.Skew(), fmt.Errorf("fetch server time: %w", err)
	}
	rtt := p.sync.now().Sub(start)

	skew := p.sync.ObserveFrom(SourcePoll, serverTime.Add(rtt/2))
	p.logger.Debug().
		Dur("skew", skew).
		Dur("rtt", rtt).
		Msg("Clock skew updated")
	return skew, nil
}

// Run syncs immediately and then every interval until ctx is done.
// Failures are logged and the previous estimate is kept.
func (p *Poller) Run(ctx context.Context) {
	p.syncLogged(ctx)
	p.Poll(ctx)
}

// Poll syncs every interval until ctx is done, without an initial sync.
func (p *Poller) Poll(ctx context.Context) {
	p.logger.Info().Dur("interval", p.interval).Msg("Clock poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("Clock poller stopped")
			return
		case <-ticker.C:
			p.syncLogged(ctx)
		}
	}
}

func (p *Poller) syncLogged(ctx context.Context) {
	if _, err := p.SyncOnce(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn().Err(err).Msg("Clock sync failed, keeping previous skew")
	}
}
