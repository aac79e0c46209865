// Package client wires signing, clock sync, request building and transport
// into one Coinbase REST client, with opt-in retries and a response cache for
// public market data.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/coinbase-client/pkg/auth"
	"github.com/Sternrassler/coinbase-client/pkg/cache"
	"github.com/Sternrassler/coinbase-client/pkg/clock"
	"github.com/Sternrassler/coinbase-client/pkg/ratelimit"
	"github.com/Sternrassler/coinbase-client/pkg/request"
	"github.com/Sternrassler/coinbase-client/pkg/transport"
)

// Version is reported in the default User-Agent.
const Version = "1.0.0"

// Well known base URLs.
const (
	BaseURLProduction = "https://api.coinbase.com"
	BaseURLExchange   = "https://api.exchange.coinbase.com"
	BaseURLSandbox    = "https://api-public.sandbox.exchange.coinbase.com"
)

// DefaultUserAgent identifies this client.
var DefaultUserAgent = "coinbase-client/" + Version

// Config holds the client configuration.
type Config struct {
	BaseURL   string
	UserAgent string

	// Credentials select the signing scheme. Nil restricts the client to
	// public endpoints.
	Credentials auth.Credentials

	// HTTP
	Timeout             time.Duration
	MaxIdleConnsPerHost int

	// ClockSyncInterval enables proactive clock polling via StartClockSync.
	// Zero leaves only the reactive correction from rejected requests.
	ClockSyncInterval time.Duration

	Retry RetryConfig

	// Redis enables the response cache for public cacheable endpoints and
	// shares rate limit state with other clients of the same host.
	Redis    *redis.Client
	CacheTTL time.Duration

	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration with retries disabled and no cache.
func DefaultConfig(baseURL string, creds auth.Credentials) Config {
	return Config{
		BaseURL:             baseURL,
		UserAgent:           DefaultUserAgent,
		Credentials:         creds,
		Timeout:             30 * time.Second,
		MaxIdleConnsPerHost: 10,
		ClockSyncInterval:   0,
		Retry:               DefaultRetryConfig(),
		CacheTTL:            cache.DefaultTTL,
	}
}

// Client executes Coinbase REST calls.
type Client struct {
	builder   *request.Builder
	transport *transport.Transport
	clock     *clock.Sync
	signer    auth.Signer
	cache     *cache.Manager
	limiter   *ratelimit.Tracker
	config    Config
	logger    zerolog.Logger

	mu         sync.Mutex
	stopPoller context.CancelFunc
	pollerDone chan struct{}
	closed     bool
}

// New validates cfg and creates a client. The signer is built once here; an
// unusable EC key is reported immediately.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q must be absolute", ErrInvalidConfig, cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("%w: user-agent is required", ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be > 0 (got %s)", ErrInvalidConfig, cfg.Timeout)
	}
	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries must be >= 0 (got %d)", ErrInvalidConfig, cfg.Retry.MaxRetries)
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("component", "coinbase-client").Logger()

	var signer auth.Signer
	if cfg.Credentials != nil {
		signer, err = auth.NewSigner(cfg.Credentials)
		if err != nil {
			return nil, fmt.Errorf("create signer: %w", err)
		}
	}

	clk := clock.New()
	builder, err := request.NewBuilder(cfg.BaseURL, signer, clk, cfg.UserAgent, logger)
	if err != nil {
		if signer != nil {
			signer.Close()
		}
		return nil, err
	}

	tcfg := transport.DefaultConfig()
	tcfg.Timeout = cfg.Timeout
	if cfg.MaxIdleConnsPerHost > 0 {
		tcfg.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}

	c := &Client{
		builder:   builder,
		transport: transport.New(tcfg, clk, logger),
		clock:     clk,
		signer:    signer,
		config:    cfg,
		logger:    logger,
	}
	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis, logger)
		c.limiter = ratelimit.NewTracker(cfg.Redis, builder.Host(), logger)
	}

	ev := logger.Info().
		Str("base_url", cfg.BaseURL).
		Bool("cache", c.cache != nil).
		Int("max_retries", cfg.Retry.MaxRetries)
	if signer != nil {
		ev = ev.Str("scheme", string(signer.Scheme()))
	}
	ev.Msg("Client created")

	return c, nil
}

// Fetch performs exactly one build, sign and execute round trip. Non-2xx
// statuses are returned as responses. Cacheable public GET endpoints are
// served from the response cache when one is configured.
func (c *Client) Fetch(ctx context.Context, ep request.Endpoint, params request.Params) (*transport.RawResponse, error) {
	if c.cache != nil && isCacheable(ep) {
		return c.fetchCached(ctx, ep, params)
	}
	return c.roundTrip(ctx, ep, params)
}

// Do is Fetch with the configured retry policy. Once retries are exhausted
// the last failure is returned wrapped in ErrRetryExhausted; statuses that
// are not retried come back as responses.
func (c *Client) Do(ctx context.Context, ep request.Endpoint, params request.Params) (*transport.RawResponse, error) {
	if !c.config.Retry.Enabled() {
		return c.Fetch(ctx, ep, params)
	}

	var resp *transport.RawResponse
	err := retryWithBackoff(ctx, c.config.Retry, ep.Method, c.logger, func(attempt int) (ErrorClass, error) {
		skewBefore := c.clock.Skew()
		r, err := c.Fetch(ctx, ep, params)
		if err != nil {
			return classifyError(err), err
		}

		resp = r
		class := classifyStatus(r.Status, c.clock.Skew() != skewBefore)
		if class != "" && shouldRetry(class, ep.Method) {
			return class, transport.CheckStatus(ep.Name, r)
		}
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, ep request.Endpoint, params request.Params) (*transport.RawResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
			}
			c.logger.Warn().Err(err).Str("endpoint", ep.Name).Msg("Rate limit state unavailable")
		}
	}

	// Build after waiting so the signature timestamp is fresh.
	req, err := c.builder.Build(ep, params)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Update(ctx, resp.Status, resp.Header); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", ep.Name).Msg("Failed to record rate limit state")
		}
	}
	return resp, nil
}

func isCacheable(ep request.Endpoint) bool {
	return ep.Cacheable && ep.Public && (ep.Method == "" || ep.Method == http.MethodGet)
}

// fetchCached serves fresh entries, revalidates stale ones and stores
// cacheable responses. Cache failures never fail the call.
func (c *Client) fetchCached(ctx context.Context, ep request.Endpoint, params request.Params) (*transport.RawResponse, error) {
	key := cache.Key{
		Host:       c.builder.Host(),
		Endpoint:   ep.Name,
		PathParams: params.Path,
		Query:      params.Query,
	}

	entry, err := c.cache.Get(ctx, key)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn().Err(err).Str("endpoint", ep.Name).Msg("Cache get error")
	}
	if entry != nil && !entry.IsExpired() {
		c.logger.Debug().Str("endpoint", ep.Name).Msg("Served from cache")
		return entry.Response(), nil
	}

	if conditional := cache.ConditionalHeaders(entry); conditional != nil {
		params = params.Clone()
		if params.Headers == nil {
			params.Headers = make(map[string]string, len(conditional))
		}
		for k, v := range conditional {
			params.Headers[k] = v
		}
		c.logger.Debug().Str("endpoint", ep.Name).Str("etag", entry.ETag).Msg("Revalidating cached response")
	}

	resp, err := c.roundTrip(ctx, ep, params)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusNotModified && entry != nil {
		cache.Refresh(entry, resp, c.config.CacheTTL)
		if err := c.cache.Set(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", ep.Name).Msg("Failed to refresh cache entry")
		}
		return entry.Response(), nil
	}

	if cache.Cacheable(resp) {
		if err := c.cache.Set(ctx, key, cache.ResponseToEntry(resp, c.config.CacheTTL)); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", ep.Name).Msg("Failed to cache response")
		}
	}
	return resp, nil
}

// StartClockSync polls source every ClockSyncInterval until Close. The first
// sync runs before StartClockSync returns so that the first signed request
// already uses a corrected clock.
func (c *Client) StartClockSync(ctx context.Context, source clock.TimeSource) error {
	if c.config.ClockSyncInterval <= 0 {
		return fmt.Errorf("%w: clock sync interval not set", ErrInvalidConfig)
	}
	poller, err := clock.NewPoller(c.clock, source, c.config.ClockSyncInterval, c.logger)
	if err != nil {
		return err
	}

	if err := c.pollerAvailable(); err != nil {
		return err
	}

	// The initial sync is a network call and runs without holding c.mu so a
	// concurrent Close is never blocked by it.
	if _, err := poller.SyncOnce(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Initial clock sync failed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.pollerAvailableLocked(); err != nil {
		return err
	}

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.stopPoller = cancel
	c.pollerDone = done
	go func() {
		defer close(done)
		poller.Poll(pollCtx)
	}()
	return nil
}

func (c *Client) pollerAvailable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollerAvailableLocked()
}

func (c *Client) pollerAvailableLocked() error {
	if c.closed {
		return ErrClientClosed
	}
	if c.stopPoller != nil {
		return ErrClockSyncRunning
	}
	return nil
}

// Clock returns the client's skew estimate.
func (c *Client) Clock() *clock.Sync {
	return c.clock
}

// Host returns the API host requests are sent to.
func (c *Client) Host() string {
	return c.builder.Host()
}

// Close stops clock polling and wipes the signing key.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	stop, done := c.stopPoller, c.pollerDone
	c.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	if c.signer != nil {
		c.signer.Close()
	}
	c.logger.Info().Msg("Client closed")
	return nil
}

// SetHTTPClient replaces the HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.transport.SetHTTPClient(client)
}

// GetCache returns the cache manager, or nil (for testing).
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
