package utils

import (
	"encoding/json"
	"net/http"
)

// APIError represents an API error with its HTTP status.
type APIError struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Detail
}

// NewAPIError creates a new API error.
func NewAPIError(detail string, status int) *APIError {
	return &APIError{
		Status: status,
		Detail: detail,
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// SendErrorResponse sends the error envelope used across the API.
func SendErrorResponse(w http.ResponseWriter, err *APIError) {
	WriteJSON(w, err.Status, map[string]string{
		"status": "error",
		"detail": err.Detail,
	})
}

// SendSuccessResponse sends the success envelope used by action routes.
func SendSuccessResponse(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}
