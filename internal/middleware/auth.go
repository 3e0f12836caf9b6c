package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/saunafleet/fleet-server/internal/audit"
	apperrors "github.com/saunafleet/fleet-server/internal/errors"
	"github.com/saunafleet/fleet-server/internal/util"
)

// AdminAuthMiddleware guards admin routes with a bearer token whose SHA-256
// digest is configured. Without a configured digest every request passes.
type AdminAuthMiddleware struct {
	tokenHash string
}

func NewAdminAuthMiddleware(tokenHash string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{tokenHash: strings.ToLower(tokenHash)}
}

func (m *AdminAuthMiddleware) Enabled() bool {
	return m.tokenHash != ""
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			writeError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		if !util.ConstantTimeEqual(util.HashToken(token), m.tokenHash) {
			log.Warn().Str("path", r.URL.Path).Msg("admin auth: invalid token attempt")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"path": r.URL.Path},
			})
			writeError(w, apperrors.Unauthorized("Invalid token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}
