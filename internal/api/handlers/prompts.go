package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/prompt"
)

type PromptHandler struct {
	svc *prompt.Service
}

func NewPromptHandler(svc *prompt.Service) *PromptHandler {
	return &PromptHandler{svc: svc}
}

// savePromptRequest creates a prompt, or re-versions it when ID is set.
type savePromptRequest struct {
	ID *uuid.UUID `json:"id,omitempty"`
	prompt.CreateRequest
}

func (h *PromptHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req savePromptRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.svc.CreateOrVersion(r.Context(), req.ID, req.CreateRequest)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if req.ID != nil {
		status = http.StatusOK
	}
	writeJSON(w, status, p)
}

func (h *PromptHandler) List(w http.ResponseWriter, r *http.Request) {
	pg, ok := pageParams(w, r)
	if !ok {
		return
	}
	req := prompt.ListRequest{Skip: pg.Skip, Limit: pg.Limit}
	if v := r.URL.Query().Get("project_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			badRequest(w, r, "invalid project_id")
			return
		}
		req.ProjectID = &id
	}

	prompts, err := h.svc.List(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": prompts, "count": len(prompts)})
}

func (h *PromptHandler) Get(w http.ResponseWriter, r *http.Request) {
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

func (h *PromptHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req prompt.PatchRequest
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

func (h *PromptHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.svc.Publish(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *PromptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *PromptHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	versions, err := h.svc.ListVersions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"versions": versions, "count": len(versions)})
}

func (h *PromptHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		badRequest(w, r, "version must be a positive integer")
		return
	}

	v, err := h.svc.GetVersion(r.Context(), id, version)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, v)
}

func (h *PromptHandler) RenderPrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req prompt.RenderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.svc.RenderPrompt(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
