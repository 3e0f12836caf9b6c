package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/saunafleet/fleet-server/internal/errors"
	"github.com/saunafleet/fleet-server/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeError logs server-side failures with their cause before answering.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.GetCode(err)
	if httputil.StatusFromCode(code) >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	httputil.WriteError(w, err)
}

// decodeJSON reads a JSON request body into dst. An empty body leaves dst
// untouched.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperrors.PayloadTooLarge(maxErr.Limit)
	}
	return apperrors.InvalidInput("body", "malformed JSON")
}
