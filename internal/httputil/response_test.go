package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/saunafleet/fleet-server/internal/errors"
)

func TestStatusFromCode(t *testing.T) {
	tests := []struct {
		code   apperrors.ErrorCode
		status int
	}{
		{apperrors.ErrCodeMissingDevice, http.StatusBadRequest},
		{apperrors.ErrCodeInvalidDeviceFormat, http.StatusBadRequest},
		{apperrors.ErrCodeInvalidInput, http.StatusBadRequest},
		{apperrors.ErrCodeDeviceNotFound, http.StatusNotFound},
		{apperrors.ErrCodeUnknownCode, http.StatusNotFound},
		{apperrors.ErrCodeUnauthorized, http.StatusUnauthorized},
		{apperrors.ErrCodePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{apperrors.ErrCodeRateLimitExceeded, http.StatusTooManyRequests},
		{apperrors.ErrCodeStorageBusy, http.StatusInternalServerError},
		{apperrors.ErrCodeStorageFailure, http.StatusInternalServerError},
		{apperrors.ErrorCode("something-else"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.status, StatusFromCode(tc.code))
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Run("writes AppError with mapped status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, apperrors.DeviceNotFound("abc"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, apperrors.ErrCodeDeviceNotFound, body.Code)
		assert.False(t, body.Retryable)
	})

	t.Run("hides plain errors behind internal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("secret detail"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret detail")
		assert.Contains(t, rec.Body.String(), `"code":"internal"`)
	})

	t.Run("marks storage-busy as retryable", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, apperrors.StorageBusy(errors.New("lock timeout")))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), `"retryable":true`)
	})
}
