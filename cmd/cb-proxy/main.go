// Command cb-proxy exposes a signing pass-through for Coinbase REST GET
// endpoints together with health, metrics and server time routes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/coinbase-client/pkg/client"
	"github.com/Sternrassler/coinbase-client/pkg/coinbase"
	"github.com/Sternrassler/coinbase-client/pkg/config"
	"github.com/Sternrassler/coinbase-client/pkg/logging"
	"github.com/Sternrassler/coinbase-client/pkg/metrics"
	"github.com/Sternrassler/coinbase-client/pkg/request"
)

const proxyTimeout = 30 * time.Second

// forwardedHeaders are copied from the upstream response.
var forwardedHeaders = []string{"Content-Type", "Cache-Control", "ETag", "Expires", "Last-Modified", "CB-AFTER", "CB-BEFORE"}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cb-proxy: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotenv(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logging.Setup(cfg.Logging())
	logger := logging.NewLogger("cb-proxy")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientCfg, err := cfg.ClientConfig(&logger)
	if err != nil {
		return err
	}
	rdb := cfg.NewRedis()
	if rdb != nil {
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		clientCfg.Redis = rdb
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	}

	core, err := client.New(clientCfg)
	if err != nil {
		return err
	}
	defer core.Close()

	api := coinbase.New(core, logger)
	if clientCfg.ClockSyncInterval > 0 {
		if err := api.StartClockSync(ctx); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Proxy.Port,
		Handler:           newMux(core, api, rdb, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("upstream", clientCfg.BaseURL).
			Str("user_agent", clientCfg.UserAgent).
			Msg("Starting proxy server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server failed")
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// loadConfig reads the file named by CB_CONFIG, or the CB_* environment.
func loadConfig() (config.Config, error) {
	if path := os.Getenv("CB_CONFIG"); path != "" {
		return config.Load(path)
	}
	return config.FromEnv()
}

func newMux(core *client.Client, api *coinbase.Client, rdb *redis.Client, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(rdb))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/time", timeHandler(api, core))
	proxy := proxyHandler(core, logger)
	mux.HandleFunc("/v2/", proxy)
	mux.HandleFunc("/api/v3/", proxy)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports 503 when the configured cache is unreachable.
func readyHandler(rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rdb != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// timeHandler returns the exchange time and the client's current skew.
func timeHandler(api *coinbase.Client, core *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), proxyTimeout)
		defer cancel()

		serverTime, err := api.ServerTime(ctx)
		if err != nil {
			http.Error(w, fmt.Sprintf("server time: %v", err), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"iso":%q,"epoch_millis":%d,"skew_ms":%d}`,
			serverTime.UTC().Format(time.RFC3339Nano),
			serverTime.UnixMilli(),
			core.Clock().Skew().Milliseconds())
	}
}

// proxyHandler signs and forwards GET requests to the same path upstream.
func proxyHandler(core *client.Client, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "only GET is proxied", http.StatusMethodNotAllowed)
			return
		}
		if strings.ContainsAny(r.URL.Path, "{}") {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), proxyTimeout)
		defer cancel()

		ep := request.Endpoint{
			Name:   "proxy",
			Method: http.MethodGet,
			Path:   r.URL.Path,
		}
		resp, err := core.Do(ctx, ep, request.Params{Query: r.URL.Query()})
		if err != nil {
			logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Proxy request failed")
			http.Error(w, fmt.Sprintf("upstream request failed: %v", err), http.StatusBadGateway)
			return
		}

		for _, name := range forwardedHeaders {
			if v := resp.Header.Get(name); v != "" {
				w.Header().Set(name, v)
			}
		}
		w.WriteHeader(resp.Status)
		if _, err := w.Write(resp.Body); err != nil {
			logger.Debug().Err(err).Msg("Failed to write response")
		}
	}
}
