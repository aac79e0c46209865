package request

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
)

// ErrAlreadyExecuted is returned when a SignedRequest is handed out twice.
// Timestamps and token expiries are one-shot: retries must build again.
var ErrAlreadyExecuted = errors.New("signed request already executed")

// SignedRequest is a fully specified request valid for one execution.
// Its fields are read-only after Build.
type SignedRequest struct {
	endpoint string
	method   string
	url      string
	header   http.Header
	body     []byte
	public   bool

	claimed atomic.Bool
}

func (r *SignedRequest) Endpoint() string { return r.endpoint }
func (r *SignedRequest) Method() string   { return r.method }
func (r *SignedRequest) URL() string      { return r.url }
func (r *SignedRequest) Public() bool     { return r.public }

// Header returns a copy of the request headers.
func (r *SignedRequest) Header() http.Header { return r.header.Clone() }

// Body returns a copy of the encoded body.
func (r *SignedRequest) Body() []byte { return bytes.Clone(r.body) }

// Claim marks the request as executed. Only the first call succeeds.
func (r *SignedRequest) Claim() error {
	if !r.claimed.CompareAndSwap(false, true) {
		return ErrAlreadyExecuted
	}
	return nil
}

// Claimed reports whether the request was already handed to a transport.
func (r *SignedRequest) Claimed() bool {
	return r.claimed.Load()
}

// NewHTTPRequest claims the request and materializes it bound to ctx.
// A second call fails with ErrAlreadyExecuted.
func (r *SignedRequest) NewHTTPRequest(ctx context.Context) (*http.Request, error) {
	if err := r.Claim(); err != nil {
		return nil, err
	}

	var body io.Reader
	if len(r.body) > 0 {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, err
	}
	req.Header = r.header.Clone()
	return req, nil
}
