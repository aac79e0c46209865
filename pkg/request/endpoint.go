// Package request turns endpoint descriptors and parameters into signed,
// single-use HTTP requests.
package request

import (
	"net/url"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Endpoint describes one REST endpoint. It is static data owned by the caller
// (see package coinbase); the builder only checks required parameters.
type Endpoint struct {
	// Name labels logs and metrics, e.g. "list_accounts".
	Name string

	Method string

	// Path is a template such as "/v2/accounts/{account}/transactions".
	// Every placeholder is a required path parameter.
	Path string

	// RequiredQuery lists query parameters that must be present.
	RequiredQuery []string

	// Public endpoints are sent unsigned.
	Public bool

	// Cacheable marks public GET endpoints whose responses may be cached.
	Cacheable bool
}

// PathParams returns the placeholder names in template order.
func (e Endpoint) PathParams() []string {
	matches := placeholderPattern.FindAllStringSubmatch(e.Path, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Params are the per-call inputs for an endpoint.
type Params struct {
	Path  map[string]string
	Query url.Values
	// Body is JSON encoded when non-nil. A []byte or json.RawMessage is sent as is.
	Body any
	// Headers are caller overrides. They never replace auth headers.
	Headers map[string]string
}

// Clone returns a deep copy so a paginator can vary the cursor per page
// without touching the caller's values.
func (p Params) Clone() Params {
	out := Params{Body: p.Body}
	if p.Path != nil {
		out.Path = make(map[string]string, len(p.Path))
		for k, v := range p.Path {
			out.Path[k] = v
		}
	}
	out.Query = url.Values{}
	for k, vs := range p.Query {
		out.Query[k] = append([]string(nil), vs...)
	}
	if p.Headers != nil {
		out.Headers = make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// expandPath substitutes path parameters, escaping each value.
func expandPath(template string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.Trim(match, "{}")
		return url.PathEscape(values[name])
	})
}
