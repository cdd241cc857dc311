package transport

import (
	"encoding/json"
	"net/http"
)

// Error types used in the JSON error envelope.
const (
	ErrorTypeInvalidRequest  = "invalid_request"
	ErrorTypeUnauthorized    = "unauthorized"
	ErrorTypeForbidden       = "forbidden"
	ErrorTypeTooManyRequests = "too_many_requests"
	ErrorTypeServerError     = "server_error"
)

// APIError is the error payload inside the envelope.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the JSON envelope written for every error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// HTTPStatusFromErrorType maps an error type to the corresponding HTTP
// status code.
func HTTPStatusFromErrorType(errType string) int {
	switch errType {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a JSON error envelope with an explicit status
// code. It sets the Content-Type header before writing.
func WriteErrorResponse(w http.ResponseWriter, errType, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: &APIError{Type: errType, Message: message}})
}

// WriteError writes a JSON error envelope, deriving the HTTP status code
// from the error type.
func WriteError(w http.ResponseWriter, errType, message string) {
	WriteErrorResponse(w, errType, message, HTTPStatusFromErrorType(errType))
}
