package cache

import (
	"net/http"
	"time"

	"github.com/Sternrassler/coinbase-client/pkg/transport"
)

// Entry is a cached response.
type Entry struct {
	Body         []byte      `json:"body"`
	ETag         string      `json:"etag,omitempty"`
	Expires      time.Time   `json:"expires"`
	LastModified time.Time   `json:"last_modified,omitempty"`
	Status       int         `json:"status"`
	Header       http.Header `json:"header"`
	CachedAt     time.Time   `json:"cached_at"`
}

// IsExpired reports whether the entry is stale and must be revalidated.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns how long the entry stays fresh.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Revalidatable reports whether a conditional request can be made for it.
func (e *Entry) Revalidatable() bool {
	return e != nil && (e.ETag != "" || !e.LastModified.IsZero())
}

// Response rebuilds the raw response. Body and header are copies.
func (e *Entry) Response() *transport.RawResponse {
	return &transport.RawResponse{
		Status: e.Status,
		Header: e.Header.Clone(),
		Body:   append([]byte(nil), e.Body...),
	}
}
