// Package testutil provides an in-process mock of the Coinbase REST API.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MaxTimestampDrift is how far a CB-ACCESS-TIMESTAMP may be from the mock's
// clock before the request is rejected.
const MaxTimestampDrift = 30 * time.Second

// MockResponse defines a canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is one request seen by the mock.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// MockExchange is a configurable mock Coinbase server.
type MockExchange struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Offset is added to the local clock to produce the server's clock.
	offset      time.Duration
	requireAuth bool

	requests         []RecordedRequest
	conditionalCount int
	rejectedCount    int
}

// NewMockExchange starts a mock server. Every response carries a Date header
// from the server's clock, and GET /api/v3/brokerage/time is served by
// default.
func NewMockExchange() *MockExchange {
	m := &MockExchange{handlers: make(map[string]http.HandlerFunc)}
	m.SetHandler(http.MethodGet, "/api/v3/brokerage/time", m.serverTimeHandler)

	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

func (m *MockExchange) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
		m.conditionalCount++
	}
	handler, ok := m.handlers[r.Method+" "+r.URL.Path]
	requireAuth := m.requireAuth
	m.mu.Unlock()

	w.Header().Set("Date", m.Now().UTC().Format(http.TimeFormat))

	if requireAuth && !strings.HasSuffix(r.URL.Path, "/time") {
		if reason := m.checkAuth(r); reason != "" {
			m.mu.Lock()
			m.rejectedCount++
			m.mu.Unlock()
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "message": reason})
			return
		}
	}

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "Route not found"})
		return
	}
	handler(w, r)
}

// checkAuth returns a rejection reason, or "" if the request is acceptable.
func (m *MockExchange) checkAuth(r *http.Request) string {
	if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		return ""
	}
	if r.Header.Get("CB-ACCESS-KEY") == "" || r.Header.Get("CB-ACCESS-SIGN") == "" {
		return "missing credentials"
	}
	ts, err := strconv.ParseInt(r.Header.Get("CB-ACCESS-TIMESTAMP"), 10, 64)
	if err != nil {
		return "invalid timestamp"
	}
	drift := m.Now().Sub(time.Unix(ts, 0))
	if drift > MaxTimestampDrift || drift < -MaxTimestampDrift {
		return "request timestamp expired"
	}
	return ""
}

func (m *MockExchange) serverTimeHandler(w http.ResponseWriter, _ *http.Request) {
	now := m.Now().UTC()
	writeJSON(w, http.StatusOK, map[string]string{
		"iso":          now.Format(time.RFC3339Nano),
		"epochSeconds": strconv.FormatInt(now.Unix(), 10),
		"epochMillis":  strconv.FormatInt(now.UnixMilli(), 10),
	})
}

// URL returns the mock server URL.
func (m *MockExchange) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockExchange) Close() {
	m.server.Close()
}

// Now returns the server's clock.
func (m *MockExchange) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Now().Add(m.offset)
}

// SetClockOffset shifts the server's clock relative to the local one.
func (m *MockExchange) SetClockOffset(offset time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset = offset
}

// RequireAuth makes the mock reject unsigned requests and HMAC timestamps
// outside MaxTimestampDrift with 401.
func (m *MockExchange) RequireAuth(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requireAuth = on
}

// Reset clears recorded requests and counters.
func (m *MockExchange) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.conditionalCount = 0
	m.rejectedCount = 0
}

// SetHandler sets the handler for method and path.
func (m *MockExchange) SetHandler(method, path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+" "+path] = handler
}

// SetResponse configures a canned response for method and path.
func (m *MockExchange) SetResponse(method, path string, resp MockResponse) {
	m.SetHandler(method, path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetSequence serves responses in order; the last one repeats.
func (m *MockExchange) SetSequence(method, path string, responses ...MockResponse) {
	var (
		mu sync.Mutex
		i  int
	)
	m.SetHandler(method, path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[i]
		if i < len(responses)-1 {
			i++
		}
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// Requests returns a copy of every recorded request.
func (m *MockExchange) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestCount returns the number of requests received.
func (m *MockExchange) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// ConditionalCount returns the number of conditional requests.
func (m *MockExchange) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// RejectedCount returns the number of requests rejected by RequireAuth.
func (m *MockExchange) RejectedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rejectedCount
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewCacheableResponse creates a 200 OK response with an ETag and max-age.
func NewCacheableResponse(body, etag string, maxAge time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"ETag":          etag,
			"Cache-Control": fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())),
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors":[{"id":"rate_limit_exceeded","message":"Too many requests"}]}`,
		Headers:    map[string]string{"Content-Type": "application/json", "Retry-After": "1"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":"internal_server_error","message":"Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewConditionalHandler answers 304 when If-None-Match matches etag.
func NewConditionalHandler(etag, data string, maxAge time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}

// NewV2PagesHandler serves v2 style pages. Each element of pages is the JSON
// content of one "data" array; page i+1 is reached with starting_after=page-i.
func NewV2PagesHandler(pages ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx := 0
		if after := r.URL.Query().Get("starting_after"); after != "" {
			n, err := strconv.Atoi(strings.TrimPrefix(after, "page-"))
			if err != nil || n < 0 || n >= len(pages)-1 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_cursor", "message": "unknown cursor"})
				return
			}
			idx = n + 1
		}

		next := "null"
		if idx < len(pages)-1 {
			next = fmt.Sprintf(`"page-%d"`, idx)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"pagination":{"next_starting_after":%s},"data":%s}`, next, pages[idx])
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
