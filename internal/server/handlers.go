package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/lethehq/lethe/internal/services"
	"github.com/lethehq/lethe/internal/storage"
	"github.com/lethehq/lethe/pkg/types"
)

// Handlers bundles the HTTP API handlers around one runner.
type Handlers struct {
	runner *services.Runner
}

// NewHandlers creates the API handlers.
func NewHandlers(runner *services.Runner) *Handlers {
	return &Handlers{runner: runner}
}

// runRequest is the body for POST /api/run.
type runRequest struct {
	// Event names the context event for reinforce rules. Optional.
	Event string `json:"event,omitempty"`

	// Now pins the evaluation time. Zero means the wall clock.
	Now time.Time `json:"now,omitempty"`

	// Trust overrides every record's own trust for forget rules.
	Trust *float64 `json:"trust,omitempty"`
}

// RunBatch executes one evaluation batch against the stored record set.
func (h *Handlers) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	summary, err := h.runner.Run(r.Context(), types.Context{
		Now:   req.Now,
		Event: req.Event,
		Trust: req.Trust,
	})
	if err != nil {
		writeStorageError(w, err, "run failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Retrieve ranks the stored record set for a query.
func (h *Handlers) Retrieve(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter is required")
		return
	}

	topk := 0
	if raw := r.URL.Query().Get("topk"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "topk must be a non-negative integer")
			return
		}
		topk = v
	}

	results, err := h.runner.Retrieve(r.Context(), query, topk, time.Now().UTC())
	if err != nil {
		writeStorageError(w, err, "retrieval failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// ListRecords returns a filtered page of records.
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		Page:            atoiDefault(q.Get("page"), 0),
		Limit:           atoiDefault(q.Get("limit"), 0),
		SortBy:          q.Get("sort_by"),
		SortOrder:       q.Get("sort_order"),
		Topic:           q.Get("topic"),
		Tag:             q.Get("tag"),
		Emotion:         q.Get("emotion"),
		IncludeRemoved:  q.Get("include_removed") == "true",
		IncludeShielded: q.Get("include_shielded") != "false",
	}

	page, err := h.runner.Store().List(r.Context(), opts)
	if err != nil {
		writeStorageError(w, err, "failed to list records")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// CreateRecord ingests a new record.
func (h *Handlers) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var record types.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.runner.Ingest(r.Context(), &record)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeStorageError(w, err, "failed to store record")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetRecord returns a single record by ID.
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.runner.Store().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStorageError(w, err, "failed to get record")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// DeleteRecord permanently removes a record.
func (h *Handlers) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.Store().Delete(r.Context(), r.PathValue("id")); err != nil {
		writeStorageError(w, err, "failed to delete record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAudit returns a page of the persisted audit trail, oldest first.
func (h *Handlers) GetAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		Page:  atoiDefault(q.Get("page"), 0),
		Limit: atoiDefault(q.Get("limit"), 0),
	}

	page, err := h.runner.Store().ListAudit(r.Context(), opts)
	if err != nil {
		writeStorageError(w, err, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStorageError maps storage sentinel errors to HTTP statuses.
func writeStorageError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("server: %s: %v", fallback, err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
