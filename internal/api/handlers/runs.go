package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/apperr"
	"github.com/nikhilbhutani/promptforge/internal/queue"
	"github.com/nikhilbhutani/promptforge/internal/run"
)

// RunQueue schedules runs for the worker. It is nil when Redis is disabled.
type RunQueue interface {
	EnqueueRunExecute(ctx context.Context, payload queue.RunExecutePayload) (string, error)
	RunStatus(id string) (*queue.TaskStatus, error)
}

type RunHandler struct {
	executor *run.Executor
	queue    RunQueue
}

func NewRunHandler(executor *run.Executor, q RunQueue) *RunHandler {
	return &RunHandler{executor: executor, queue: q}
}

func (h *RunHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req run.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.executor.Execute(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *RunHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeError(w, r, apperr.ProviderNotReady(nil, "asynchronous runs are not enabled"))
		return
	}

	var req run.Request
	if !decodeJSON(w, r, &req) {
		return
	}
	payload := queue.RunExecutePayload{
		PromptID:         req.PromptID.String(),
		InputVariables:   req.InputVariables,
		Model:            req.Model,
		StructuredOutput: req.StructuredOutput,
		Version:          req.Version,
	}
	if req.ProjectID != uuid.Nil {
		payload.ProjectID = req.ProjectID.String()
	}

	taskID, err := h.queue.EnqueueRunExecute(r.Context(), payload)
	if err != nil {
		writeError(w, r, apperr.Internal(err, "failed to enqueue run"))
		return
	}

	writeJSON(w, http.StatusAccepted, queue.TaskStatus{ID: taskID, State: "pending"})
}

func (h *RunHandler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeError(w, r, apperr.ProviderNotReady(nil, "asynchronous runs are not enabled"))
		return
	}

	taskID := chi.URLParam(r, "taskID")
	st, err := h.queue.RunStatus(taskID)
	if errors.Is(err, queue.ErrTaskNotFound) {
		writeError(w, r, apperr.NotFound("task %s not found", taskID))
		return
	}
	if err != nil {
		writeError(w, r, apperr.Internal(err, "failed to read task status"))
		return
	}

	writeJSON(w, http.StatusOK, st)
}

func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.executor.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListForPrompt lists runs latest first unless order=asc.
func (h *RunHandler) ListForPrompt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	pg, ok := pageParams(w, r)
	if !ok {
		return
	}

	latestFirst := true
	switch r.URL.Query().Get("order") {
	case "", "desc":
	case "asc":
		latestFirst = false
	default:
		badRequest(w, r, "order must be asc or desc")
		return
	}

	runs, err := h.executor.List(r.Context(), id, run.ListRequest{
		Skip:        pg.Skip,
		Limit:       pg.Limit,
		LatestFirst: latestFirst,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}
