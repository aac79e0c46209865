package auth

import (
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Header names emitted by the signers.
const (
	HeaderAccessKey        = "CB-ACCESS-KEY"
	HeaderAccessSign       = "CB-ACCESS-SIGN"
	HeaderAccessTimestamp  = "CB-ACCESS-TIMESTAMP"
	HeaderAccessPassphrase = "CB-ACCESS-PASSPHRASE"
	HeaderAuthorization    = "Authorization"
)

var signTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cb_sign_total",
	Help: "Request signatures by scheme and result",
}, []string{"scheme", "result"})

// Request is the canonical view of an HTTP request that a Signer needs.
type Request struct {
	Method   string
	Host     string // e.g. "api.coinbase.com"
	Path     string // escaped path, always starting with "/"
	RawQuery string // encoded query without "?"
	Body     []byte
	// Time is the skew-corrected "now" taken at build time. It is never cached
	// across requests.
	Time time.Time
}

// RequestPath returns the path plus "?query" when a query is present.
func (r Request) RequestPath() string {
	if r.RawQuery == "" {
		return r.Path
	}
	return r.Path + "?" + r.RawQuery
}

// Headers are the auth headers for exactly one request.
type Headers map[string]string

// Names returns the header names in canonical, sorted order.
func (h Headers) Names() []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is one of the signed headers, ignoring case.
func (h Headers) Has(name string) bool {
	canonical := http.CanonicalHeaderKey(name)
	for k := range h {
		if http.CanonicalHeaderKey(k) == canonical {
			return true
		}
	}
	return false
}

// Apply sets every signed header on dst, replacing existing values.
func (h Headers) Apply(dst http.Header) {
	for _, name := range h.Names() {
		dst.Set(name, h[name])
	}
}

// Signer produces auth headers for a request. The interface is sealed: the
// only implementations are *HMACSigner and *JWTSigner.
type Signer interface {
	Scheme() Scheme
	Sign(req Request) (Headers, error)
	// Close wipes key material held by the signer.
	Close()

	signer()
}

// NewSigner returns the signer matching the credentials variant.
func NewSigner(creds Credentials) (Signer, error) {
	switch c := creds.(type) {
	case *HMACCredentials:
		return NewHMACSigner(c)
	case *ECCredentials:
		return NewJWTSigner(c)
	default:
		return nil, &SignError{Kind: KindMissingCredentials}
	}
}

func observeSign(scheme Scheme, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	signTotal.WithLabelValues(string(scheme), result).Inc()
}
