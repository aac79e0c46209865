package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/coinbase-client/pkg/transport"
)

// DefaultTTL is used when the response carries no freshness information.
const DefaultTTL = 30 * time.Second

// staleRetention is how long Redis keeps an entry past its freshness so that
// it can still be revalidated.
const staleRetention = 10 * time.Minute

// ResponseToEntry converts a successful response into a cache entry.
func ResponseToEntry(resp *transport.RawResponse, fallback time.Duration) *Entry {
	now := time.Now()
	entry := &Entry{
		Body:     append([]byte(nil), resp.Body...),
		ETag:     resp.Header.Get("ETag"),
		Status:   resp.Status,
		Header:   resp.Header.Clone(),
		CachedAt: now,
		Expires:  parseExpires(resp.Header, now, fallback),
	}

	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		if t, err := http.ParseTime(lastMod); err == nil {
			entry.LastModified = t
		}
	}
	return entry
}

// Cacheable reports whether a response may be stored at all.
func Cacheable(resp *transport.RawResponse) bool {
	if resp.Status != http.StatusOK {
		return false
	}
	cc := strings.ToLower(resp.Header.Get("Cache-Control"))
	return !strings.Contains(cc, "no-store") && !strings.Contains(cc, "private")
}

// parseExpires prefers Cache-Control max-age over Expires.
func parseExpires(headers http.Header, now time.Time, fallback time.Duration) time.Time {
	if fallback <= 0 {
		fallback = DefaultTTL
	}

	for _, directive := range strings.Split(headers.Get("Cache-Control"), ",") {
		directive = strings.TrimSpace(strings.ToLower(directive))
		if directive == "no-cache" {
			return now
		}
		if v, ok := strings.CutPrefix(directive, "max-age="); ok {
			if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
				return now.Add(time.Duration(secs) * time.Second)
			}
		}
	}

	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return now.Add(fallback)
	}
	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return now.Add(fallback)
	}
	if expires.Before(now) {
		return now
	}
	return expires
}

// ConditionalHeaders returns the request headers revalidating entry, or nil
// when the entry carries no validator.
func ConditionalHeaders(entry *Entry) map[string]string {
	if !entry.Revalidatable() {
		return nil
	}
	if entry.ETag != "" {
		return map[string]string{"If-None-Match": entry.ETag}
	}
	return map[string]string{"If-Modified-Since": entry.LastModified.UTC().Format(http.TimeFormat)}
}

// Refresh extends a revalidated entry using the headers of the 304 response.
func Refresh(entry *Entry, notModified *transport.RawResponse, fallback time.Duration) {
	now := time.Now()
	entry.Expires = parseExpires(notModified.Header, now, fallback)
	if etag := notModified.Header.Get("ETag"); etag != "" {
		entry.ETag = etag
	}
	ConditionalRequests.Inc()
}
