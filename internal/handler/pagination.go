package handler

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ParseLimit reads ?limit=, falling back to DefaultLimit for missing,
// malformed or out of range values.
func ParseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > MaxLimit {
		return DefaultLimit
	}
	return limit
}
