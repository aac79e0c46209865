// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a child of the global logger with a component field.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: request flow
//   - Built requests (endpoint, method, path, signed)
//   - Pages fetched (page index, item count, terminal)
//   - Cache hits and revalidations
//   - Clock skew updates from polling
//
// Info: lifecycle
//   - Client created and closed
//   - Clock poller started
//   - Proxy startup and shutdown
//   - Requests that succeeded after retry
//
// Warn: recoverable problems
//   - Auth rejected and clock skew corrected
//   - Transport failures
//   - Cache errors (the request still goes out)
//   - Clock sync failures (the previous skew is kept)
//   - Retry attempts exhausted
//   - Rate limited (429) and waiting for a shared reset
//
// Error: failures needing attention
//   - Proxy configuration and startup errors
//
// Context Fields:
//   - component: emitting package
//   - endpoint: endpoint name, e.g. list_accounts
//   - status: HTTP status code
//   - duration / skew / rtt: durations
//   - error_class: retry classification
//   - page: 1-based page index
//
// Secrets never appear in logs: credentials marshal redacted and signed
// header values (CB-ACCESS-SIGN, CB-ACCESS-PASSPHRASE, Authorization) are not
// logged.
