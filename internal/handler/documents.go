package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saunafleet/fleet-server/internal/model"
	"github.com/saunafleet/fleet-server/internal/service"
)

type DocumentHandler struct {
	documentService *service.DocumentService
}

func NewDocumentHandler(documentService *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

func (h *DocumentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{kind}", h.Get)
	r.Put("/{kind}", h.Put)

	return r
}

// GET /v1/documents/{settings|schedule}
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind := model.DocumentKind(chi.URLParam(r, "kind"))
	doc, err := h.documentService.Read(r.Context(), kind)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"document": doc})
}

// PUT /v1/documents/{settings|schedule}
func (h *DocumentHandler) Put(w http.ResponseWriter, r *http.Request) {
	kind := model.DocumentKind(chi.URLParam(r, "kind"))

	var doc model.Document
	if err := decodeJSON(r, &doc); err != nil {
		writeError(w, r, err)
		return
	}

	version, err := h.documentService.Write(r.Context(), kind, doc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": version})
}
