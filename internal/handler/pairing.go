package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/saunafleet/fleet-server/internal/config"
	apperrors "github.com/saunafleet/fleet-server/internal/errors"
	"github.com/saunafleet/fleet-server/internal/model"
	"github.com/saunafleet/fleet-server/internal/service"
)

type PairingHandler struct {
	pairingService *service.PairingService
	adminAuth      func(http.Handler) http.Handler
	rateLimit      func(http.Handler) http.Handler
}

func NewPairingHandler(
	pairingService *service.PairingService,
	adminAuth func(http.Handler) http.Handler,
	rateLimit func(http.Handler) http.Handler,
) *PairingHandler {
	return &PairingHandler{
		pairingService: pairingService,
		adminAuth:      adminAuth,
		rateLimit:      rateLimit,
	}
}

func (h *PairingHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Display side
	r.With(h.rateLimit).Post("/code", h.RequestCode)
	r.Get("/poll", h.Poll)
	r.Get("/qr", h.QR)

	// Operator side
	r.Group(func(r chi.Router) {
		r.Use(h.adminAuth)
		r.Post("/claim", h.Claim)
		r.Get("/codes", h.ListCodes)
	})

	return r
}

// POST /v1/pairing/code
func (h *PairingHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OriginHint string `json:"originHint"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	pc, err := h.pairingService.RequestCode(r.Context(), req.OriginHint)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"code":      pc.Code,
		"expiresAt": pc.ExpiresAt(h.pairingService.TTL()).UTC().Format(time.RFC3339),
	})
}

// POST /v1/pairing/claim
func (h *PairingHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	deviceID, err := h.pairingService.Claim(r.Context(), req.Code, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"deviceId": deviceID})
}

// GET /v1/pairing/poll?code=
func (h *PairingHandler) Poll(w http.ResponseWriter, r *http.Request) {
	res, err := h.pairingService.Poll(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// GET /v1/pairing/qr?code=
// Renders an open code as a PNG QR image for the operator to scan.
func (h *PairingHandler) QR(w http.ResponseWriter, r *http.Request) {
	pc, err := h.pairingService.OpenCode(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	png, err := qrcode.Encode(pc.Code, qrcode.Medium, config.PairingQRImageSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode pairing QR code")
		writeError(w, r, apperrors.Internal("Failed to generate QR code"))
		return
	}

	maxAge := int(time.Until(pc.ExpiresAt(h.pairingService.TTL())).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", maxAge))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// GET /v1/pairing/codes
func (h *PairingHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.pairingService.ListCodes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if codes == nil {
		codes = []model.PairingCodeStatus{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"codes": codes})
}
