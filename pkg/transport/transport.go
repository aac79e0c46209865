// Package transport executes signed requests over a pooled HTTP client and
// classifies connection level failures.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/coinbase-client/pkg/clock"
	"github.com/Sternrassler/coinbase-client/pkg/request"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cb_requests_total",
		Help: "Total requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cb_request_duration_seconds",
		Help:    "Request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	transportErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cb_transport_errors_total",
		Help: "Total transport failures by kind",
	}, []string{"kind"})
)

// maxErrorBody bounds the body excerpt kept in HTTP errors.
const maxErrorBody = 512

// RawResponse is an HTTP response with its body fully read.
type RawResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status.
func (r *RawResponse) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// TimeHint extracts the server's current time from a response, if it carries
// one. ok is false when no hint is present.
type TimeHint func(resp *RawResponse) (serverTime time.Time, ok bool)

// Config holds transport configuration.
type Config struct {
	// Timeout bounds one request, including reading the body.
	Timeout time.Duration

	// MaxIdleConnsPerHost sizes the connection pool.
	MaxIdleConnsPerHost int

	// TimeHint is consulted on 401 responses. Defaults to DateHeaderHint.
	TimeHint TimeHint
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		MaxIdleConnsPerHost: 10,
		TimeHint:            DateHeaderHint,
	}
}

// Transport executes SignedRequests. It is safe for concurrent use.
type Transport struct {
	client *http.Client
	clock  *clock.Sync
	hint   TimeHint
	logger zerolog.Logger
}

// New creates a transport with its own pooled http.Client. clk receives
// server time hints; it may be nil.
func New(cfg Config, clk *clock.Sync, logger zerolog.Logger) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	if cfg.TimeHint == nil {
		cfg.TimeHint = DateHeaderHint
	}

	pool := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Transport{
		client: &http.Client{Transport: pool, Timeout: cfg.Timeout},
		clock:  clk,
		hint:   cfg.TimeHint,
		logger: logger,
	}
}

// SetHTTPClient replaces the underlying client (for testing).
func (t *Transport) SetHTTPClient(client *http.Client) {
	t.client = client
}

// Execute sends req once. Non-2xx statuses are returned as a RawResponse, not
// as errors; only connection level failures produce an *Error. The response
// body is always drained and closed before returning so the pooled connection
// is released even if the caller abandons the result.
func (t *Transport) Execute(ctx context.Context, req *request.SignedRequest) (*RawResponse, error) {
	endpoint := req.Endpoint()

	httpReq, err := req.NewHTTPRequest(ctx)
	if err != nil {
		if errors.Is(err, request.ErrAlreadyExecuted) {
			return nil, fmt.Errorf("%s: %w", endpoint, err)
		}
		return nil, &Error{Kind: KindConnect, Endpoint: endpoint, Err: err}
	}

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, t.fail(endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, t.fail(endpoint, err)
	}

	raw := &RawResponse{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusUnauthorized {
		t.observeRejection(endpoint, raw)
	}

	t.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method()).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Request executed")

	return raw, nil
}

func (t *Transport) fail(endpoint string, err error) error {
	kind := classify(err)
	transportErrorsTotal.WithLabelValues(string(kind)).Inc()
	t.logger.Warn().
		Err(err).
		Str("endpoint", endpoint).
		Str("kind", string(kind)).
		Msg("Request failed")
	return &Error{Kind: kind, Endpoint: endpoint, Err: err}
}

// observeRejection forwards a server time hint to the clock so the next
// build carries a corrected timestamp. The rejected request is not replayed.
func (t *Transport) observeRejection(endpoint string, resp *RawResponse) {
	if t.clock == nil {
		return
	}
	serverTime, ok := t.hint(resp)
	if !ok {
		return
	}
	skew := t.clock.ObserveFrom(clock.SourceRejection, serverTime)
	t.logger.Warn().
		Str("endpoint", endpoint).
		Dur("skew", skew).
		Msg("Auth rejected, clock skew updated from server time")
}

// CheckStatus returns a KindHTTP *Error for non-2xx responses.
func CheckStatus(endpoint string, resp *RawResponse) error {
	if resp.OK() {
		return nil
	}
	body := resp.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &Error{
		Kind:     KindHTTP,
		Endpoint: endpoint,
		Status:   resp.Status,
		Body:     string(body),
	}
}

// DateHeaderHint reads the standard Date response header.
func DateHeaderHint(resp *RawResponse) (time.Time, bool) {
	value := resp.Header.Get("Date")
	if value == "" {
		return time.Time{}, false
	}
	parsed, err := http.ParseTime(value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
