package pagination

import (
	"errors"
	"fmt"
)

// Common errors returned while paging.
var (
	ErrMalformed      = errors.New("malformed page")
	ErrSchemaMismatch = errors.New("page does not match expected schema")

	// ErrCursorLoop is returned when the server hands back the token that was
	// just sent, which would otherwise page forever.
	ErrCursorLoop = errors.New("cursor did not advance")
)

// DecodeErrorKind classifies a decode failure.
type DecodeErrorKind string

const (
	KindMalformed      DecodeErrorKind = "malformed"
	KindSchemaMismatch DecodeErrorKind = "schema_mismatch"
)

// DecodeError is returned when a page body cannot be decoded.
type DecodeError struct {
	Kind DecodeErrorKind
	Err  error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode page: %s: %v", e.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is matches ErrMalformed and ErrSchemaMismatch by kind.
func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrSchemaMismatch:
		return e.Kind == KindSchemaMismatch
	}
	return false
}

// StreamError attaches the failing endpoint and 1-based page index to an
// error raised while fetching or decoding a page.
type StreamError struct {
	Endpoint string
	Page     int
	Err      error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: page %d: %v", e.Endpoint, e.Page, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StreamError) Unwrap() error {
	return e.Err
}
