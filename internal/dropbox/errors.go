// Package dropbox provides an HTTP client for the Dropbox API v2 upload
// endpoints and the OAuth2 authorization-code flow that produces its token.
package dropbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tonimelisma/dropbox-upload/internal/failure"
)

// Sentinel errors for HTTP status classification.
// Use errors.Is(err, dropbox.ErrWriteConflict) to check.
var (
	ErrBadRequest    = errors.New("dropbox: bad request")
	ErrUnauthorized  = errors.New("dropbox: unauthorized")
	ErrEndpoint      = errors.New("dropbox: endpoint error")
	ErrWriteConflict = errors.New("dropbox: write conflict")
	ErrRateLimited   = errors.New("dropbox: rate limited")
	ErrServerError   = errors.New("dropbox: server error")
)

// APIError wraps a sentinel error with the HTTP status, the Dropbox
// error_summary, and the raw response body.
type APIError struct {
	StatusCode int
	Summary    string // error_summary from the JSON body, may be empty
	Body       string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Summary != "" {
		return fmt.Sprintf("dropbox: HTTP %d: %s", e.StatusCode, e.Summary)
	}

	return fmt.Sprintf("dropbox: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// errorBody is the JSON shape of Dropbox endpoint errors.
type errorBody struct {
	ErrorSummary string `json:"error_summary"`
}

// newAPIError builds an APIError from a non-2xx response body.
func newAPIError(status int, body []byte) *APIError {
	var eb errorBody
	if json.Unmarshal(body, &eb) != nil {
		eb.ErrorSummary = ""
	}

	return &APIError{
		StatusCode: status,
		Summary:    eb.ErrorSummary,
		Body:       string(body),
		Err:        classify(status, eb.ErrorSummary),
	}
}

// classify maps an HTTP status (and for 409, the error summary) to a sentinel.
func classify(status int, summary string) error {
	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusConflict:
		// Endpoint-specific errors share 409; path/conflict/... is the
		// write-conflict family.
		if strings.Contains(summary, "conflict") {
			return ErrWriteConflict
		}

		return ErrEndpoint
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		if status >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// AuthError is returned when the token endpoint rejects a code exchange.
// Body is the response body verbatim.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("dropbox: token exchange failed with HTTP %d: %s", e.StatusCode, e.Body)
}

// Unwrap classifies every AuthError as an authentication failure.
func (e *AuthError) Unwrap() error {
	return failure.ErrAuth
}
