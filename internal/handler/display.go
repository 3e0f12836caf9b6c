package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saunafleet/fleet-server/internal/model"
	"github.com/saunafleet/fleet-server/internal/service"
)

type DisplayHandler struct {
	resolveService *service.ResolveService
	deviceService  *service.DeviceService
}

func NewDisplayHandler(resolveService *service.ResolveService, deviceService *service.DeviceService) *DisplayHandler {
	return &DisplayHandler{
		resolveService: resolveService,
		deviceService:  deviceService,
	}
}

func (h *DisplayHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/resolve", h.Resolve)
	r.Post("/touch", h.Touch)

	return r
}

type resolvedDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type resolveResponse struct {
	Device       resolvedDevice      `json:"device"`
	Settings     model.Document      `json:"settings"`
	Schedule     model.Document      `json:"schedule"`
	Meta         model.EffectiveMeta `json:"meta"`
	ActivePreset model.PresetKey     `json:"activePreset"`
	PresetSource string              `json:"presetSource"`
	Now          string              `json:"now"`
}

// GET /v1/display/resolve?device=
func (h *DisplayHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.resolveService.Resolve(r.Context(), r.URL.Query().Get("device"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resolveResponse{
		Device:       resolvedDevice{ID: cfg.Device.ID, Name: cfg.Device.Name},
		Settings:     cfg.Settings,
		Schedule:     cfg.Schedule,
		Meta:         cfg.Meta,
		ActivePreset: cfg.ActivePreset,
		PresetSource: cfg.PresetSource,
		Now:          cfg.Now.UTC().Format(time.RFC3339),
	})
}

// POST /v1/display/touch
func (h *DisplayHandler) Touch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Device  string         `json:"device"`
		Status  string         `json:"status"`
		Metrics map[string]any `json:"metrics"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sample := model.HeartbeatSample{Status: req.Status, Metrics: req.Metrics}
	if err := h.deviceService.Touch(r.Context(), req.Device, sample); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
