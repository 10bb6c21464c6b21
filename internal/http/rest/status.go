// Package rest exposes the status endpoint served while a run is in flight.
package rest

import (
	"encoding/json"
	"net/http"

	"github.com/drivearc/drivearc/internal/logctx"
	"github.com/drivearc/drivearc/internal/mirror"
	"github.com/drivearc/drivearc/internal/progress"
	"github.com/drivearc/drivearc/internal/report"
	"github.com/go-chi/chi/v5"
)

// StatusHandler serves the durable progress counts plus the live counters of
// the current run. Both backing stores are safe for concurrent reads.
type StatusHandler struct {
	store    *progress.Store
	counters *mirror.Counters
	runID    string
}

func NewStatusHandler(store *progress.Store, counters *mirror.Counters, runID string) *StatusHandler {
	return &StatusHandler{
		store:    store,
		counters: counters,
		runID:    runID,
	}
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", h.handleHealth)
	r.Get("/status", h.handleStatus)

	return r
}

type statusResponse struct {
	RunID    string         `json:"run_id"`
	Run      mirror.Summary `json:"run"`
	Progress report.Status  `json:"progress"`
}

func (h *StatusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		RunID:    h.runID,
		Run:      h.counters.Summary(),
		Progress: report.Build(h.store.Snapshot(), 10, 10),
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode status response", "err", err)
	}
}

func (h *StatusHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
