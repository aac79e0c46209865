package auth

import (
	"errors"
	"fmt"
)

// Common errors returned by signers.
var (
	// ErrInvalidSecret is returned when an HMAC secret is not valid base64.
	ErrInvalidSecret = errors.New("invalid api secret")

	// ErrKeyRejected is returned when an EC private key cannot be parsed.
	ErrKeyRejected = errors.New("private key rejected")

	// ErrMissingCredentials is returned when a signer is built without key material.
	ErrMissingCredentials = errors.New("missing credentials")
)

// SignErrorKind classifies a signing failure.
type SignErrorKind string

const (
	KindInvalidSecret      SignErrorKind = "invalid_secret"
	KindKeyRejected        SignErrorKind = "key_rejected"
	KindMissingCredentials SignErrorKind = "missing_credentials"
	KindSign               SignErrorKind = "sign"
)

// SignError describes why a request could not be signed. It never carries
// secret material.
type SignError struct {
	Kind   SignErrorKind
	Scheme Scheme
	Err    error
}

// Error implements the error interface.
func (e *SignError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s signer: %s: %v", e.Scheme, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s signer: %s", e.Scheme, e.Kind)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *SignError) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels by kind.
func (e *SignError) Is(target error) bool {
	switch target {
	case ErrInvalidSecret:
		return e.Kind == KindInvalidSecret
	case ErrKeyRejected:
		return e.Kind == KindKeyRejected
	case ErrMissingCredentials:
		return e.Kind == KindMissingCredentials
	}
	return false
}
