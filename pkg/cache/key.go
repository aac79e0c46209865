package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies one cached response.
type Key struct {
	// Host separates production from sandbox responses.
	Host string

	// Endpoint is the endpoint name (e.g. "list_products").
	Endpoint string

	// PathParams are the values substituted into the endpoint path.
	PathParams map[string]string

	// Query holds the query parameters of the request.
	Query url.Values
}

// String generates a deterministic key.
// Format: cb:host:endpoint:path1=val1:query1=val1,val2
//
// Example:
//
//	cb:api.coinbase.com:get_product:product_id=BTC-USD
func (k Key) String() string {
	parts := []string{"cb"}

	if k.Host != "" {
		parts = append(parts, strings.ToLower(k.Host))
	}
	if k.Endpoint != "" {
		parts = append(parts, k.Endpoint)
	}

	for _, name := range sortedKeys(k.PathParams) {
		parts = append(parts, fmt.Sprintf("%s=%s", name, k.PathParams[name]))
	}

	queryKeys := make([]string, 0, len(k.Query))
	for name := range k.Query {
		queryKeys = append(queryKeys, name)
	}
	sort.Strings(queryKeys)
	for _, name := range queryKeys {
		parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(k.Query[name], ",")))
	}

	return strings.Join(parts, ":")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
