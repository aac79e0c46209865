package client

import (
	"errors"
	"net/http"

	"github.com/Sternrassler/coinbase-client/pkg/transport"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during backoff.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrClientClosed is returned by StartClockSync after Close.
	ErrClientClosed = errors.New("client closed")

	// ErrClockSyncRunning is returned when StartClockSync is called twice.
	ErrClockSyncRunning = errors.New("clock sync already running")

	// ErrInvalidConfig is returned by New for unusable configuration.
	ErrInvalidConfig = errors.New("invalid client config")
)

// ErrorClass groups failures for retry decisions and metrics.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx errors other than 401 and 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents connect and timeout failures.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassClockSkew represents a 401 that corrected the clock skew
	// estimate, so a freshly signed attempt may succeed.
	ErrorClassClockSkew ErrorClass = "clock_skew"

	// ErrorClassFatal represents failures that are never retried.
	ErrorClassFatal ErrorClass = "fatal"
)

// classifyStatus returns "" for statuses that are not failures.
func classifyStatus(status int, skewChanged bool) ErrorClass {
	switch {
	case status < 400:
		return ""
	case status == http.StatusUnauthorized && skewChanged:
		return ErrorClassClockSkew
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// classifyError maps round trip failures to a class.
func classifyError(err error) ErrorClass {
	if errors.Is(err, transport.ErrConnect) || errors.Is(err, transport.ErrTimeout) {
		return ErrorClassNetwork
	}
	return ErrorClassFatal
}

// shouldRetry determines if a class is worth another attempt for method.
// Rate limit and clock skew rejections were refused before processing, so
// they are safe for any method; server and network failures only for GET.
func shouldRetry(class ErrorClass, method string) bool {
	switch class {
	case ErrorClassRateLimit, ErrorClassClockSkew:
		return true
	case ErrorClassServer, ErrorClassNetwork:
		return method == "" || method == http.MethodGet
	default:
		return false
	}
}
