package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saunafleet/fleet-server/internal/model"
	"github.com/saunafleet/fleet-server/internal/service"
)

type DeviceHandler struct {
	deviceService *service.DeviceService
}

func NewDeviceHandler(deviceService *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceService: deviceService}
}

func (h *DeviceHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/heartbeats", h.Heartbeats)

	r.Post("/mode", h.SetOverrideMode)
	r.Post("/override", h.SaveOverride)
	r.Post("/rename", h.Rename)
	r.Post("/unpair", h.Unpair)

	return r
}

type deviceSummary struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Status       model.DeviceStatus `json:"status"`
	LastSeenAt   any                `json:"lastSeenAt"`
	UseOverrides bool               `json:"useOverrides"`
}

// GET /v1/devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deviceService.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]deviceSummary, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceSummary{
			ID:           d.ID,
			Name:         d.Name,
			Status:       d.Status,
			LastSeenAt:   formatTime(d.LastSeenAt),
			UseOverrides: d.UseOverrides,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

// GET /v1/devices/{id}
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	device, err := h.deviceService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, device)
}

// GET /v1/devices/{id}/heartbeats?limit=
func (h *DeviceHandler) Heartbeats(w http.ResponseWriter, r *http.Request) {
	samples, err := h.deviceService.Heartbeats(r.Context(), chi.URLParam(r, "id"), ParseLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if samples == nil {
		samples = []model.HeartbeatSample{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"samples": samples})
}

// POST /v1/devices/mode
func (h *DeviceHandler) SetOverrideMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Device string             `json:"device"`
		Mode   model.OverrideMode `json:"mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.deviceService.SetOverrideMode(r.Context(), req.Device, req.Mode); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// POST /v1/devices/override
func (h *DeviceHandler) SaveOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Device   string         `json:"device"`
		Settings model.Document `json:"settings"`
		Schedule model.Document `json:"schedule"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.deviceService.SaveOverride(r.Context(), req.Device, model.SaveOverrideParams{
		Settings: req.Settings,
		Schedule: req.Schedule,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := map[string]any{"ok": true}
	if res.SettingsVersion != nil {
		resp["version"] = *res.SettingsVersion
	}
	if res.ScheduleVersion != nil {
		resp["scheduleVersion"] = *res.ScheduleVersion
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /v1/devices/rename
func (h *DeviceHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Device string `json:"device"`
		Name   string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.deviceService.Rename(r.Context(), req.Device, req.Name); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// POST /v1/devices/unpair
func (h *DeviceHandler) Unpair(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Device string `json:"device"`
		Purge  bool   `json:"purge"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	removed, err := h.deviceService.Unpair(r.Context(), req.Device, req.Purge)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "removed": removed})
}
