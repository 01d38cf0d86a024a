package models

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(ErrNotAuthenticated))
	assert.True(t, IsAuthError(fmt.Errorf("query: %w", ErrNotAuthenticated)))
	assert.True(t, IsAuthError(&APIError{StatusCode: http.StatusUnauthorized}))
	assert.False(t, IsAuthError(&APIError{StatusCode: http.StatusForbidden}))
	assert.False(t, IsAuthError(fmt.Errorf("boom")))
}

func TestIsPayloadTooLarge(t *testing.T) {
	assert.True(t, IsPayloadTooLarge(ErrUploadTooLarge))
	assert.True(t, IsPayloadTooLarge(&APIError{StatusCode: http.StatusRequestEntityTooLarge}))
	assert.False(t, IsPayloadTooLarge(&APIError{StatusCode: http.StatusBadRequest}))
}

func TestIsBusinessError(t *testing.T) {
	assert.True(t, IsBusinessError(&APIError{Business: true, Message: "target missing"}))
	assert.False(t, IsBusinessError(&APIError{StatusCode: 500}))
	assert.False(t, IsBusinessError(fmt.Errorf("dial: refused")))
}

func TestAPIErrorMessage(t *testing.T) {
	business := &APIError{StatusCode: 200, Message: "task not found", Business: true}
	assert.Contains(t, business.Error(), "task not found")

	transport := &APIError{StatusCode: 502, Message: "bad gateway"}
	assert.Contains(t, transport.Error(), "502")
}
