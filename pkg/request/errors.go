package request

import (
	"errors"
	"fmt"
)

// Common errors returned by the builder.
var (
	// ErrMissingParam is returned when a required path or query parameter is absent.
	ErrMissingParam = errors.New("missing required parameter")

	// ErrNoSigner is returned when a private endpoint is built without credentials.
	ErrNoSigner = errors.New("endpoint requires credentials but no signer is configured")
)

// BuildErrorKind classifies a build failure.
type BuildErrorKind string

const (
	KindMissingParam BuildErrorKind = "missing_param"
	KindEncode       BuildErrorKind = "encode"
	KindSign         BuildErrorKind = "sign"
)

// BuildError is returned by Builder.Build.
type BuildError struct {
	Kind     BuildErrorKind
	Endpoint string
	Param    string
	Err      error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	switch e.Kind {
	case KindMissingParam:
		return fmt.Sprintf("build %s: missing required parameter %q", e.Endpoint, e.Param)
	default:
		return fmt.Sprintf("build %s: %s: %v", e.Endpoint, e.Kind, e.Err)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Is matches ErrMissingParam for missing parameter failures.
func (e *BuildError) Is(target error) bool {
	return target == ErrMissingParam && e.Kind == KindMissingParam
}
