package coinbase

import (
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/coinbase-client/pkg/transport"
)

// APIError is an error reported in a Coinbase response body. It unwraps to
// the *transport.Error for the status.
type APIError struct {
	Status  int
	ID      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.ID == "" && e.Message == "" {
		return fmt.Sprintf("coinbase: status %d", e.Status)
	}
	return fmt.Sprintf("coinbase: status %d: %s: %s", e.Status, e.ID, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// checkResponse returns nil for 2xx responses and an *APIError otherwise.
// Both error body shapes are understood:
// {"errors":[{"id":..,"message":..}]} (v2) and {"error":..,"message":..} (v3).
func checkResponse(endpoint string, resp *transport.RawResponse) error {
	statusErr := transport.CheckStatus(endpoint, resp)
	if statusErr == nil {
		return nil
	}

	apiErr := &APIError{Status: resp.Status, Err: statusErr}

	var body struct {
		Errors []struct {
			ID      string `json:"id"`
			Message string `json:"message"`
		} `json:"errors"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		switch {
		case len(body.Errors) > 0:
			apiErr.ID = body.Errors[0].ID
			apiErr.Message = body.Errors[0].Message
		default:
			apiErr.ID = body.Error
			apiErr.Message = body.Message
		}
	}
	return apiErr
}
