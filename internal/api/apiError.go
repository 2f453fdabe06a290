package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Abhishek10299/Droply/internal/service"
	"github.com/Abhishek10299/Droply/internal/store"
)

// APIError represents a structured error response to be sent to the client.
// It implements the standard `error` interface.
type APIError struct {
	// Status is the HTTP status code that corresponds to this error.
	Status int `json:"status"`
	// Message is the user-friendly error message.
	Message string `json:"message"`
}

// Error implements the error interface, allowing APIError to be used as a standard error.
func (e *APIError) Error() string {
	return e.Message
}

// writeJSON encodes data as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError is a shorthand for sending an APIError with its own status.
func writeError(w http.ResponseWriter, err *APIError) {
	writeJSON(w, err.Status, err)
}

// --- Error Constructors ---

// NewBadRequestError creates an error representing a 400 Bad Request.
// Useful for validation failures or malformed requests.
func NewBadRequestError(message string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Message: message,
	}
}

// NewUnauthorizedError creates an error representing a 401 Unauthorized.
// Used when credential verification fails or no credential was provided.
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Status:  http.StatusUnauthorized,
		Message: message,
	}
}

// NewNotFoundError creates an error representing a 404 Not Found. Owner
// mismatches surface here too, so foreign ids are indistinguishable from
// missing ones.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Message: message,
	}
}

// NewConflictError creates an error representing a 409 Conflict: sibling name
// collisions, cyclic moves, restore collisions.
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Message: message,
	}
}

// NewInternalServerError creates an error representing a 500 Internal Server Error.
// This should be used for unexpected server-side issues.
func NewInternalServerError() *APIError {
	return &APIError{
		Status:  http.StatusInternalServerError,
		Message: "An unexpected error occured. Please try again later.",
	}
}

// --- Error Translation ---

// FromServiceError translates errors from the service/store layer into
// specific APIError types. This allows the HTTP handlers to be decoupled from
// the underlying store implementation details.
func FromServiceError(err error) *APIError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return NewNotFoundError("The requested resource could not be found")
	case errors.Is(err, store.ErrConflict):
		return NewConflictError("A conflict occurred with the current state of the resource")
	case errors.Is(err, service.ErrExpiredToken):
		return &APIError{
			Status:  http.StatusGone,
			Message: "The upload token has expired or was already used",
		}
	case errors.Is(err, service.ErrStorageMismatch):
		return NewBadRequestError("The uploaded object does not match the token's constraints")
	case errors.Is(err, service.ErrQuotaExceeded):
		return &APIError{
			Status:  http.StatusRequestEntityTooLarge,
			Message: "The storage quota would be exceeded",
		}
	}

	// For any other untranslatable error, we return a generic internal server
	// error to avoid leaking implementation details to the client.
	return NewInternalServerError()
}
