package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/saunafleet/fleet-server/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error     string              `json:"error"`
	Code      apperrors.ErrorCode `json:"code"`
	Retryable bool                `json:"retryable,omitempty"`
	Details   any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		// Wrap unknown errors as internal errors
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	WriteErrorWithStatus(w, StatusFromCode(appErr.Code), appErr)
}

// WriteErrorWithStatus writes an error with a specific HTTP status code
func WriteErrorWithStatus(w http.ResponseWriter, status int, err *apperrors.AppError) {
	if err.Retryable() {
		w.Header().Set("Retry-After", "1")
	}
	response := ErrorResponse{
		Error:     err.Message,
		Code:      err.Code,
		Retryable: err.Retryable(),
		Details:   err.Details,
	}
	WriteJSON(w, status, response)
}

// StatusFromCode maps ErrorCode to HTTP status code
func StatusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeMissingRequired,
		apperrors.ErrCodeMissingDevice,
		apperrors.ErrCodeInvalidDeviceFormat:
		return http.StatusBadRequest

	// 401 Unauthorized
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized

	// 404 Not Found
	case apperrors.ErrCodeNotFound,
		apperrors.ErrCodeDeviceNotFound,
		apperrors.ErrCodeUnknownCode,
		apperrors.ErrCodeCodeExpired:
		return http.StatusNotFound

	// 413 Payload Too Large
	case apperrors.ErrCodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge

	// 429 Too Many Requests
	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// 500 Internal Server Error
	case apperrors.ErrCodeInternal,
		apperrors.ErrCodeStorageBusy,
		apperrors.ErrCodeStorageFailure,
		apperrors.ErrCodeCodeAllocationFailed:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
