package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/promptforge/internal/provider"
)

type ProviderHandler struct {
	svc *provider.Service
}

func NewProviderHandler(svc *provider.Service) *ProviderHandler {
	return &ProviderHandler{svc: svc}
}

func (h *ProviderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req provider.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (h *ProviderHandler) List(w http.ResponseWriter, r *http.Request) {
	providers, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"providers": providers, "count": len(providers)})
}

func (h *ProviderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *ProviderHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req provider.UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.svc.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *ProviderHandler) GetDefault(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetDefault(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *ProviderHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.svc.SetDefault(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *ProviderHandler) Models(w http.ResponseWriter, r *http.Request) {
	models, err := h.svc.AvailableModels(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"models": models})
}
