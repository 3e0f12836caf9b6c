package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saunafleet/fleet-server/internal/model"
	"github.com/saunafleet/fleet-server/internal/repository"
)

const healthStoreTimeout = 2 * time.Second

// Health reports ok when the store answers a read.
func Health(store repository.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthStoreTimeout)
		defer cancel()

		err := store.View(ctx, func(rd repository.Reader) error {
			_, err := rd.Documents().Get(ctx, model.DocumentSettings)
			return err
		})
		if err != nil {
			log.Error().Err(err).Msg("health check: store unavailable")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":    "unavailable",
				"timestamp": time.Now().UnixMilli(),
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	}
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
