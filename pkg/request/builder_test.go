package request

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/Sternrassler/coinbase-client/pkg/auth"
	"github.com/Sternrassler/coinbase-client/pkg/clock"
	"github.com/rs/zerolog"
)

const testSecret = "Y29pbmJhc2UtdGVzdC1zZWNyZXQtMDEyMzQ1Njc4OQ=="

// spySigner counts Sign calls and delegates to the embedded signer.
type spySigner struct {
	auth.Signer
	calls int
	last  auth.Request
}

func (s *spySigner) Sign(req auth.Request) (auth.Headers, error) {
	s.calls++
	s.last = req
	return s.Signer.Sign(req)
}

func newSpy(t *testing.T) *spySigner {
	t.Helper()
	inner, err := auth.NewHMACSigner(auth.NewHMACCredentials("key-1234", testSecret, "pass"))
	if err != nil {
		t.Fatalf("NewHMACSigner: %v", err)
	}
	return &spySigner{Signer: inner}
}

func fixedClock() *clock.Sync {
	return clock.NewWithClock(func() time.Time { return time.Unix(1700000000, 0) })
}

func newTestBuilder(t *testing.T, signer auth.Signer) *Builder {
	t.Helper()
	b, err := NewBuilder("https://api.exchange.coinbase.com", signer, fixedClock(), "coinbase-client/test", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return b
}

var transactionsEndpoint = Endpoint{
	Name:   "list_transactions",
	Method: "GET",
	Path:   "/v2/accounts/{account}/transactions",
}

func TestNewBuilder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "absolute", baseURL: "https://api.coinbase.com"},
		{name: "relative", baseURL: "/v2", wantErr: true},
		{name: "unparseable", baseURL: "http://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(tt.baseURL, nil, nil, "ua", zerolog.Nop())
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuild_MissingParamHasNoSideEffects(t *testing.T) {
	tests := []struct {
		name      string
		endpoint  Endpoint
		params    Params
		wantParam string
	}{
		{
			name:      "path parameter omitted",
			endpoint:  transactionsEndpoint,
			params:    Params{},
			wantParam: "account",
		},
		{
			name:      "path parameter empty",
			endpoint:  transactionsEndpoint,
			params:    Params{Path: map[string]string{"account": ""}},
			wantParam: "account",
		},
		{
			name: "required query omitted",
			endpoint: Endpoint{
				Name:          "list_fills",
				Method:        "GET",
				Path:          "/fills",
				RequiredQuery: []string{"product_id"},
			},
			params:    Params{Query: url.Values{"limit": {"10"}}},
			wantParam: "product_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := newSpy(t)
			b := newTestBuilder(t, spy)

			req, err := b.Build(tt.endpoint, tt.params)
			if req != nil {
				t.Error("expected no request")
			}
			if !errors.Is(err, ErrMissingParam) {
				t.Fatalf("err = %v, want ErrMissingParam", err)
			}
			var buildErr *BuildError
			if !errors.As(err, &buildErr) || buildErr.Param != tt.wantParam {
				t.Errorf("missing param = %v, want %q", err, tt.wantParam)
			}
			if spy.calls != 0 {
				t.Errorf("signer called %d times, want 0", spy.calls)
			}
		})
	}
}

func TestBuild_SignsCanonicalRequest(t *testing.T) {
	spy := newSpy(t)
	b := newTestBuilder(t, spy)

	req, err := b.Build(Endpoint{Name: "list_accounts", Method: "get", Path: "/accounts"}, Params{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if spy.calls != 1 {
		t.Fatalf("signer called %d times, want 1", spy.calls)
	}
	if spy.last.Host != "api.exchange.coinbase.com" || spy.last.Method != "GET" || spy.last.Path != "/accounts" {
		t.Errorf("unexpected canonical request %+v", spy.last)
	}

	h := req.Header()
	if got := h.Get(auth.HeaderAccessSign); got != "W9TT+pm7sltZMXIjBi0aIyNYC6G7TitMJ5bzsJl8qco=" {
		t.Errorf("signature = %q", got)
	}
	if got := h.Get(auth.HeaderAccessTimestamp); got != "1700000000" {
		t.Errorf("timestamp = %q", got)
	}
	if got := h.Get("User-Agent"); got != "coinbase-client/test" {
		t.Errorf("User-Agent = %q", got)
	}
	if req.URL() != "https://api.exchange.coinbase.com/accounts" {
		t.Errorf("URL = %q", req.URL())
	}
}

func TestBuild_TimestampTracksSkew(t *testing.T) {
	spy := newSpy(t)
	clk := fixedClock()
	b, err := NewBuilder("https://api.exchange.coinbase.com", spy, clk, "ua", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	clk.Observe(time.Unix(1700000030, 0))
	req, err := b.Build(Endpoint{Name: "list_accounts", Path: "/accounts"}, Params{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := req.Header().Get(auth.HeaderAccessTimestamp); got != "1700000030" {
		t.Errorf("timestamp = %q, want skew-corrected 1700000030", got)
	}
}

func TestBuild_OverridesNeverShadowAuthHeaders(t *testing.T) {
	b := newTestBuilder(t, newSpy(t))

	req, err := b.Build(Endpoint{Name: "list_accounts", Path: "/accounts"}, Params{
		Headers: map[string]string{
			"cb-access-sign": "forged",
			"CB-ACCESS-KEY":  "other-key",
			"If-None-Match":  `"etag-1"`,
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	h := req.Header()
	if h.Get(auth.HeaderAccessSign) == "forged" {
		t.Error("override replaced the signature")
	}
	if h.Get(auth.HeaderAccessKey) != "key-1234" {
		t.Errorf("access key = %q, want key-1234", h.Get(auth.HeaderAccessKey))
	}
	if h.Get("If-None-Match") != `"etag-1"` {
		t.Error("non-auth override was dropped")
	}
}

func TestBuild_PathQueryAndBody(t *testing.T) {
	spy := newSpy(t)
	b := newTestBuilder(t, spy)

	req, err := b.Build(Endpoint{
		Name:   "withdraw",
		Method: "POST",
		Path:   "/v2/accounts/{account}/withdrawals",
	}, Params{
		Path:  map[string]string{"account": "a b/c"},
		Query: url.Values{"z": {"1"}, "a": {"2"}},
		Body:  map[string]any{"amount": "1.5", "commit": true},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantURL := "https://api.exchange.coinbase.com/v2/accounts/a%20b%2Fc/withdrawals?a=2&z=1"
	if req.URL() != wantURL {
		t.Errorf("URL = %q, want %q", req.URL(), wantURL)
	}
	if spy.last.RequestPath() != "/v2/accounts/a%20b%2Fc/withdrawals?a=2&z=1" {
		t.Errorf("signed path = %q", spy.last.RequestPath())
	}
	if string(req.Body()) != `{"amount":"1.5","commit":true}` {
		t.Errorf("body = %s", req.Body())
	}
	if string(spy.last.Body) != string(req.Body()) {
		t.Error("signed body differs from sent body")
	}
	if req.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", req.Header().Get("Content-Type"))
	}
	if req.Method() != "POST" {
		t.Errorf("Method = %q", req.Method())
	}
}

func TestBuild_PublicEndpointIsUnsigned(t *testing.T) {
	spy := newSpy(t)
	b := newTestBuilder(t, spy)

	req, err := b.Build(Endpoint{Name: "server_time", Path: "/time", Public: true}, Params{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if spy.calls != 0 {
		t.Errorf("signer called for public endpoint")
	}
	if req.Header().Get(auth.HeaderAccessSign) != "" {
		t.Error("public request carries a signature")
	}
	if !req.Public() {
		t.Error("Public() = false")
	}
}

func TestBuild_PrivateEndpointWithoutSigner(t *testing.T) {
	b := newTestBuilder(t, nil)

	_, err := b.Build(Endpoint{Name: "list_accounts", Path: "/accounts"}, Params{})
	if !errors.Is(err, ErrNoSigner) {
		t.Errorf("err = %v, want ErrNoSigner", err)
	}
}

func TestBuild_SignErrorIsWrapped(t *testing.T) {
	signer, err := auth.NewHMACSigner(auth.NewHMACCredentials("key", "%%%", "pass"))
	if err != nil {
		t.Fatalf("NewHMACSigner: %v", err)
	}
	b := newTestBuilder(t, signer)

	_, err = b.Build(Endpoint{Name: "list_accounts", Path: "/accounts"}, Params{})
	if !errors.Is(err, auth.ErrInvalidSecret) {
		t.Errorf("err = %v, want auth.ErrInvalidSecret", err)
	}
}

func TestSignedRequest_SingleUse(t *testing.T) {
	b := newTestBuilder(t, newSpy(t))
	req, err := b.Build(Endpoint{Name: "withdraw", Method: "POST", Path: "/x"}, Params{Body: []byte(`{"a":1}`)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	httpReq, err := req.NewHTTPRequest(context.Background())
	if err != nil {
		t.Fatalf("NewHTTPRequest: %v", err)
	}
	body, _ := io.ReadAll(httpReq.Body)
	if string(body) != `{"a":1}` {
		t.Errorf("body = %s", body)
	}
	if httpReq.Header.Get(auth.HeaderAccessSign) == "" {
		t.Error("signature missing on http request")
	}

	if _, err := req.NewHTTPRequest(context.Background()); !errors.Is(err, ErrAlreadyExecuted) {
		t.Errorf("second use err = %v, want ErrAlreadyExecuted", err)
	}
	if !req.Claimed() {
		t.Error("Claimed() = false after use")
	}
}

func TestParams_Clone(t *testing.T) {
	orig := Params{
		Path:    map[string]string{"account": "1"},
		Query:   url.Values{"limit": {"100"}},
		Headers: map[string]string{"X": "y"},
	}
	clone := orig.Clone()
	clone.Query.Set("starting_after", "abc")
	clone.Path["account"] = "2"
	clone.Headers["X"] = "z"

	if orig.Query.Get("starting_after") != "" || orig.Path["account"] != "1" || orig.Headers["X"] != "y" {
		t.Error("Clone shares state with the original")
	}
}

func TestEndpoint_PathParams(t *testing.T) {
	ep := Endpoint{Path: "/v2/accounts/{account}/transactions/{transaction_id}"}
	got := ep.PathParams()
	if len(got) != 2 || got[0] != "account" || got[1] != "transaction_id" {
		t.Errorf("PathParams() = %v", got)
	}
}
