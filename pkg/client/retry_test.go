package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 0 || config.Enabled() {
		t.Errorf("MaxRetries = %d, retries must be off by default", config.MaxRetries)
	}
	if config.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfig_BackoffFor(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, BackoffMultiplier: 2}

	tests := []struct {
		name    string
		class   ErrorClass
		attempt int
		want    time.Duration
	}{
		{"first server retry", ErrorClassServer, 1, time.Second},
		{"second server retry", ErrorClassServer, 2, 2 * time.Second},
		{"third server retry", ErrorClassServer, 3, 4 * time.Second},
		{"capped", ErrorClassServer, 6, 5 * time.Second},
		{"rate limit starts slower", ErrorClassRateLimit, 1, 2 * time.Second},
		{"clock skew is immediate", ErrorClassClockSkew, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.backoffFor(tt.class, tt.attempt); got != tt.want {
				t.Errorf("backoffFor(%s, %d) = %v, want %v", tt.class, tt.attempt, got, tt.want)
			}
		})
	}
}

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:        maxRetries,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestRetryWithBackoff_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetry(3), http.MethodGet, zerolog.Nop(), func(attempt int) (ErrorClass, error) {
		if attempt != calls {
			t.Errorf("attempt = %d, want %d", attempt, calls)
		}
		calls++
		if calls < 3 {
			return ErrorClassServer, errors.New("server error")
		}
		return "", nil
	})

	if err != nil {
		t.Errorf("retryWithBackoff() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	boom := errors.New("server error")
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetry(2), http.MethodGet, zerolog.Nop(), func(int) (ErrorClass, error) {
		calls++
		return ErrorClassServer, boom
	})

	if !errors.Is(err, ErrRetryExhausted) || !errors.Is(err, boom) {
		t.Errorf("error = %v, want ErrRetryExhausted wrapping last error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_NonRetryableStops(t *testing.T) {
	tests := []struct {
		name   string
		class  ErrorClass
		method string
	}{
		{"client error", ErrorClassClient, http.MethodGet},
		{"fatal", ErrorClassFatal, http.MethodGet},
		{"server error on POST", ErrorClassServer, http.MethodPost},
		{"network error on POST", ErrorClassNetwork, http.MethodPost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			boom := errors.New("failure")
			calls := 0
			err := retryWithBackoff(context.Background(), fastRetry(3), tt.method, zerolog.Nop(), func(int) (ErrorClass, error) {
				calls++
				return tt.class, boom
			})
			if err != boom {
				t.Errorf("error = %v, want unwrapped original", err)
			}
			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
		})
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiplier: 2}

	calls := 0
	err := retryWithBackoff(ctx, cfg, http.MethodGet, zerolog.Nop(), func(int) (ErrorClass, error) {
		calls++
		cancel()
		return ErrorClassServer, errors.New("server error")
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("error = %v, want ErrContextCancelled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_RateLimitRetriedForPOST(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetry(1), http.MethodPost, zerolog.Nop(), func(int) (ErrorClass, error) {
		calls++
		if calls == 1 {
			return ErrorClassRateLimit, errors.New("429")
		}
		return "", nil
	})
	if err != nil || calls != 2 {
		t.Errorf("err = %v calls = %d, want success on second attempt", err, calls)
	}
}
