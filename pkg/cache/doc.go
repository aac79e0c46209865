// Package cache provides a Redis backed response cache for public Coinbase
// market data endpoints.
//
// Only unsigned GET endpoints are cached. Authenticated responses depend on the
// caller's credentials and are never stored.
//
// Features:
//
// - Freshness from Cache-Control max-age, then Expires, then a default TTL
// - ETag revalidation (If-None-Match) and Last-Modified (If-Modified-Since)
// - Entries expire in Redis with the same TTL
// - Prometheus metrics
// - Deterministic keys
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//	manager := cache.NewManager(redisClient, logger)
//
//	key := cache.Key{
//		Host:     "api.coinbase.com",
//		Endpoint: "list_products",
//		Query:    url.Values{"product_type": []string{"SPOT"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the exchange
//	}
//
// # Storing Responses
//
//	entry := cache.ResponseToEntry(resp, cache.DefaultTTL)
//	if err := manager.Set(ctx, key, entry); err != nil {
//		return err
//	}
//
// # Revalidation
//
// A stale entry is kept around until Redis evicts it so that it can be
// revalidated:
//
//	params.Headers = cache.ConditionalHeaders(entry)
//	// a 304 response means entry.Response() is still current
//
// # Metrics
//
//   - cb_cache_hits_total{layer="redis"}
//   - cb_cache_misses_total
//   - cb_cache_size_bytes{layer="redis"}
//   - cb_304_responses_total
//   - cb_cache_errors_total{operation}
package cache
