package middleware

import (
	"net/http"

	apperrors "github.com/saunafleet/fleet-server/internal/errors"
	"github.com/saunafleet/fleet-server/internal/httputil"
)

func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	httputil.WriteError(w, err)
}
