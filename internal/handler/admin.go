package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saunafleet/fleet-server/internal/service"
)

type AdminHandler struct {
	pairingService *service.PairingService
}

func NewAdminHandler(pairingService *service.PairingService) *AdminHandler {
	return &AdminHandler{pairingService: pairingService}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/gc", h.GarbageCollect)

	return r
}

// POST /v1/admin/gc
func (h *AdminHandler) GarbageCollect(w http.ResponseWriter, r *http.Request) {
	res, err := h.pairingService.GarbageCollect(r.Context(), time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"deletedDevices":  res.DeletedDevices,
		"deletedPairings": res.DeletedPairings,
	})
}
