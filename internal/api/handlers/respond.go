package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/promptforge/internal/apperr"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	maxBodyBytes = 32 << 20
)

type errorBody struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		if apperr.HasReason(err, apperr.ReasonInvalidStructuredOutput) {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case apperr.KindProviderNotReady:
		return http.StatusServiceUnavailable
	case apperr.KindTransientConflict:
		return http.StatusConflict
	case apperr.KindExecution:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err onto a status code. Causes are logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Code: string(apperr.KindOf(err)), Message: "internal server error"}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Reason = string(ae.Reason)
		body.Message = ae.Message
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"status", status,
			"error", fmt.Sprintf("%+v", err),
		)
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func badRequest(w http.ResponseWriter, r *http.Request, format string, args ...any) {
	writeError(w, r, apperr.Validation(apperr.ReasonInvalidRequest, format, args...))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			badRequest(w, r, "request body is empty")
		} else {
			badRequest(w, r, "invalid request body: %v", err)
		}
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		badRequest(w, r, "invalid %s", param)
		return uuid.Nil, false
	}
	return id, true
}

type page struct {
	Skip  int
	Limit int
}

func pageParams(w http.ResponseWriter, r *http.Request) (page, bool) {
	p := page{Limit: defaultLimit}
	q := r.URL.Query()
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, r, "skip must be a non-negative integer")
			return p, false
		}
		p.Skip = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			badRequest(w, r, "limit must be between 1 and %d", maxLimit)
			return p, false
		}
		p.Limit = n
	}
	return p, true
}
