package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nikhilbhutani/promptforge/internal/settings"
)

type SettingsHandler struct {
	svc *settings.Service
}

func NewSettingsHandler(svc *settings.Service) *SettingsHandler {
	return &SettingsHandler{svc: svc}
}

func (h *SettingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req settings.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, v)
}

func (h *SettingsHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"settings": views, "count": len(views)})
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, v)
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req settings.UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	v, err := h.svc.Update(r.Context(), chi.URLParam(r, "key"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, v)
}

func (h *SettingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
