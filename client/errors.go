package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

var (
	ErrEndpointRequired = errors.New("endpoint is required")
	ErrInvalidEndpoint  = errors.New("endpoint must be an http or https URL")
	ErrEmptyNamespace   = errors.New("namespace is required")
	ErrEmptyID          = errors.New("id is required")
)

// APIError is an error response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Field      string
}

func (e *APIError) Error() string {
	msg := "server error: " + strconv.Itoa(e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += " - " + e.Message
	}
	return msg
}

// Is reports whether target is an *APIError with the same StatusCode.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.StatusCode == e.StatusCode
}

// Sentinel errors for common response statuses. Use errors.Is to check.
var (
	ErrNotFound   = &APIError{StatusCode: http.StatusNotFound}
	ErrConflict   = &APIError{StatusCode: http.StatusConflict}
	ErrBadRequest = &APIError{StatusCode: http.StatusBadRequest}
	ErrTooLarge   = &APIError{StatusCode: http.StatusRequestEntityTooLarge}
)

// parseServerError decodes an error body, keeping the raw text when it is
// not the JSON error shape.
func parseServerError(statusCode int, body []byte) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Field   string `json:"field"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
		return &APIError{StatusCode: statusCode, Message: string(body)}
	}
	return &APIError{
		StatusCode: statusCode,
		Code:       payload.Error,
		Message:    payload.Message,
		Field:      payload.Field,
	}
}
