package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sagarc03/cellar"
)

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, code int, errCode, message string) {
	writeErrorResponse(w, code, ErrorResponse{Error: errCode, Message: message})
}

func writeErrorResponse(w http.ResponseWriter, code int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// HandleError writes appropriate error response based on error type.
// Validation and transform failures carry their message to the client,
// storage failures do not.
func HandleError(w http.ResponseWriter, err error) {
	var validationErr *cellar.ValidationError
	if errors.As(err, &validationErr) {
		writeErrorResponse(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: validationErr.Message,
			Field:   validationErr.Field,
		})
		return
	}

	var transformErr *cellar.TransformError
	if errors.As(err, &transformErr) {
		writeErrorResponse(w, http.StatusBadRequest, ErrorResponse{
			Error:   "transform_error",
			Message: transformErr.Error(),
			Field:   transformErr.Field,
		})
		return
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "Request body too large")
		return
	}

	if errors.Is(err, cellar.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "not_found", "Record not found")
		return
	}

	if errors.Is(err, cellar.ErrConflict) {
		WriteError(w, http.StatusConflict, "conflict", "Record already exists")
		return
	}

	if errors.Is(err, cellar.ErrInvalidInput) {
		WriteError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	slog.Error("request error", "error", err)
	WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}
