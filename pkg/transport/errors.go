package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the transport.
var (
	ErrConnect  = errors.New("connection failed")
	ErrTimeout  = errors.New("request timed out")
	ErrTLS      = errors.New("tls handshake failed")
	ErrCanceled = errors.New("request canceled")
	ErrHTTP     = errors.New("http error status")
)

// ErrorKind classifies a transport failure.
type ErrorKind string

const (
	KindConnect  ErrorKind = "connect"
	KindTLS      ErrorKind = "tls"
	KindTimeout  ErrorKind = "timeout"
	KindCanceled ErrorKind = "canceled"
	KindHTTP     ErrorKind = "http"
)

// Error is a classified transport failure. Connection level failures come
// from Execute; KindHTTP is produced by CheckStatus for callers that treat a
// non-2xx response as an error.
type Error struct {
	Kind     ErrorKind
	Endpoint string
	Status   int
	// Body holds the start of the response body for KindHTTP.
	Body string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Kind == KindHTTP {
		if e.Body != "" {
			return fmt.Sprintf("%s: http status %d: %s", e.Endpoint, e.Status, e.Body)
		}
		return fmt.Sprintf("%s: http status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConnect:
		return e.Kind == KindConnect
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrTLS:
		return e.Kind == KindTLS
	case ErrCanceled:
		return e.Kind == KindCanceled
	case ErrHTTP:
		return e.Kind == KindHTTP
	}
	return false
}

// classify maps an error from http.Client.Do to a kind.
func classify(err error) ErrorKind {
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var (
		recordErr   tls.RecordHeaderError
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &recordErr),
		errors.As(err, &verifyErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &hostErr),
		errors.As(err, &invalidErr):
		return KindTLS
	}

	return KindConnect
}
