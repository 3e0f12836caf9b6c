package middleware

import (
	"net/http"

	apperrors "github.com/saunafleet/fleet-server/internal/errors"
)

// DefaultMaxBodySize fits a full settings or schedule document with room to spare.
const DefaultMaxBodySize = 1 << 20

// BodyLimitMiddleware caps request bodies. Requests announcing a larger
// Content-Length are rejected up front; others are cut off while reading.
type BodyLimitMiddleware struct {
	maxSize int64
}

func NewBodyLimitMiddleware(maxSize int64) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return &BodyLimitMiddleware{maxSize: maxSize}
}

func (m *BodyLimitMiddleware) MaxSize() int64 {
	return m.maxSize
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > m.maxSize {
			writeError(w, apperrors.PayloadTooLarge(m.maxSize))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		next.ServeHTTP(w, r)
	})
}
