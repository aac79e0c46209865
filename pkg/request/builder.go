package request

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sternrassler/coinbase-client/pkg/auth"
	"github.com/Sternrassler/coinbase-client/pkg/clock"
	"github.com/rs/zerolog"
)

// Builder assembles SignedRequests against one base URL.
type Builder struct {
	base      *url.URL
	signer    auth.Signer
	clock     *clock.Sync
	userAgent string
	logger    zerolog.Logger
}

// NewBuilder creates a builder. signer may be nil when only public endpoints
// are used; clk defaults to a fresh zero-skew clock.
func NewBuilder(baseURL string, signer auth.Signer, clk *clock.Sync, userAgent string, logger zerolog.Logger) (*Builder, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Builder{
		base:      base,
		signer:    signer,
		clock:     clk,
		userAgent: userAgent,
		logger:    logger,
	}, nil
}

// Host returns the host requests are signed for.
func (b *Builder) Host() string {
	return b.base.Host
}

// Build validates params, encodes the body, signs and returns a request that
// may be executed once. Validation happens before anything is signed, so a
// missing parameter has no side effects.
func (b *Builder) Build(ep Endpoint, p Params) (*SignedRequest, error) {
	if err := checkRequired(ep, p); err != nil {
		return nil, err
	}

	method := strings.ToUpper(ep.Method)
	if method == "" {
		method = http.MethodGet
	}

	path := strings.TrimRight(b.base.Path, "/") + expandPath(ep.Path, p.Path)
	rawQuery := p.Query.Encode()

	body, err := encodeBody(p.Body)
	if err != nil {
		return nil, &BuildError{Kind: KindEncode, Endpoint: ep.Name, Err: err}
	}

	var signed auth.Headers
	if !ep.Public {
		if b.signer == nil {
			return nil, &BuildError{Kind: KindSign, Endpoint: ep.Name, Err: ErrNoSigner}
		}
		signed, err = b.signer.Sign(auth.Request{
			Method:   method,
			Host:     b.base.Host,
			Path:     path,
			RawQuery: rawQuery,
			Body:     body,
			Time:     b.clock.Now(),
		})
		if err != nil {
			return nil, &BuildError{Kind: KindSign, Endpoint: ep.Name, Err: err}
		}
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	if b.userAgent != "" {
		header.Set("User-Agent", b.userAgent)
	}
	if len(body) > 0 {
		header.Set("Content-Type", "application/json")
	}
	for name, value := range p.Headers {
		if signed.Has(name) {
			b.logger.Debug().
				Str("endpoint", ep.Name).
				Str("header", name).
				Msg("Ignoring override of auth header")
			continue
		}
		header.Set(name, value)
	}
	signed.Apply(header)

	target := b.base.Scheme + "://" + b.base.Host + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	b.logger.Debug().
		Str("endpoint", ep.Name).
		Str("method", method).
		Str("path", path).
		Bool("signed", !ep.Public).
		Msg("Built request")

	return &SignedRequest{
		endpoint: ep.Name,
		method:   method,
		url:      target,
		header:   header,
		body:     body,
		public:   ep.Public,
	}, nil
}

func checkRequired(ep Endpoint, p Params) error {
	for _, name := range ep.PathParams() {
		if p.Path[name] == "" {
			return &BuildError{Kind: KindMissingParam, Endpoint: ep.Name, Param: name}
		}
	}
	for _, name := range ep.RequiredQuery {
		if p.Query.Get(name) == "" {
			return &BuildError{Kind: KindMissingParam, Endpoint: ep.Name, Param: name}
		}
	}
	return nil
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}
