package models

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrConnectionLost   = errors.New("connection lost")
	ErrUploadTooLarge   = errors.New("upload exceeds maximum size")
	ErrInvalidPolicy    = errors.New("invalid conflict policy")
)

// APIError is a failed server exchange. Business marks responses that came
// back with the "not ok" flag set: the transport worked, the server refused.
type APIError struct {
	StatusCode int
	Message    string
	Business   bool
}

func (e *APIError) Error() string {
	if e.Business {
		return fmt.Sprintf("server refused request: %s", e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsAuthError reports whether err means the session expired. Callers must
// treat this as cross-cutting and never record it on a task or transfer item.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrNotAuthenticated) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsPayloadTooLarge reports whether err is a size-limit rejection, detected
// either client-side or via the server's 413.
func IsPayloadTooLarge(err error) bool {
	if errors.Is(err, ErrUploadTooLarge) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusRequestEntityTooLarge
}

// IsBusinessError reports whether err carries a server-provided refusal that
// should be surfaced verbatim to the user.
func IsBusinessError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Business
}
