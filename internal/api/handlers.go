// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tomtom215/watchvault/internal/config"
	"github.com/tomtom215/watchvault/internal/database"
	"github.com/tomtom215/watchvault/internal/ingest"
	"github.com/tomtom215/watchvault/internal/reconcile"
	"github.com/tomtom215/watchvault/internal/takeout"
	"github.com/tomtom215/watchvault/internal/worker"
)

// defaultUpdateCutoff skips rows enriched within the last day when the
// request does not name a cutoff.
const defaultUpdateCutoff = 24 * time.Hour

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler exposes run control over the ingestion pipeline.
type Handler struct {
	store  *database.DB
	client ingest.Enricher
	runner *worker.Runner
	cfg    *config.Config
}

// NewHandler wires the HTTP surface. client may be nil when no API key is
// configured; ingestion still runs and marks unreachable videos inactive.
func NewHandler(store *database.DB, client ingest.Enricher, runner *worker.Runner, cfg *config.Config) *Handler {
	return &Handler{store: store, client: client, runner: runner, cfg: cfg}
}

// takeoutRequest is the body of POST /api/v1/takeout.
type takeoutRequest struct {
	// Path points at a watch-history file, a directory of them, or a
	// directory of extracted takeout bundles.
	Path string `json:"path" validate:"required"`

	PruneInPlace *bool `json:"prune_in_place,omitempty"`
}

// updateRequest is the body of POST /api/v1/update.
type updateRequest struct {
	// CutoffSeconds is the minimum staleness before a row is re-enriched.
	CutoffSeconds int `json:"cutoff_seconds" validate:"min=0"`
}

// decodeBody decodes and validates a JSON request body.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON body", err)
		return false
	}
	if err := validate.Struct(v); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return false
	}
	return true
}

// Takeout starts an ingestion run over the archives at the requested
// path.
//
// Method: POST
// Path: /api/v1/takeout
//
// Response:
//   - 202: Run accepted
//   - 400: Malformed or invalid body
//   - 409: A run is already in progress
func (h *Handler) Takeout(w http.ResponseWriter, r *http.Request) {
	var req takeoutRequest
	if !decodeBody(w, r, &req) {
		return
	}

	opts := takeout.Options{PruneInPlace: h.cfg.Takeout.PruneInPlace}
	if req.PruneInPlace != nil {
		opts.PruneInPlace = *req.PruneInPlace
	}
	rec := reconcile.New(h.cfg.Reconcile.MaxTimeDifference)
	attempts := h.cfg.Enrich.RetryAttempts

	err := h.runner.Start("takeout", func(ctx context.Context, emit ingest.Emitter) error {
		ing := ingest.NewIngester(h.store, h.client, rec, opts, attempts, emit)
		_, err := ing.Run(ctx, req.Path)
		return err
	})
	if errors.Is(err, worker.ErrBusy) {
		respondError(w, http.StatusConflict, "BUSY", "A run is already in progress", nil)
		return
	}
	respondData(w, http.StatusAccepted, map[string]string{"stage": "takeout"})
}

// Update starts a re-enrichment pass over stale rows.
//
// Method: POST
// Path: /api/v1/update
//
// Response:
//   - 202: Pass accepted
//   - 400: Malformed or invalid body
//   - 409: A run is already in progress, or enrichment is disabled
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		respondError(w, http.StatusConflict, "ENRICHMENT_DISABLED", "No API key configured", nil)
		return
	}
	var req updateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cutoff := defaultUpdateCutoff
	if req.CutoffSeconds > 0 {
		cutoff = time.Duration(req.CutoffSeconds) * time.Second
	}
	attempts := h.cfg.Enrich.RetryAttempts

	err := h.runner.Start("update", func(ctx context.Context, emit ingest.Emitter) error {
		u := ingest.NewUpdater(h.store, h.client, cutoff, attempts, emit)
		_, err := u.Run(ctx)
		return err
	})
	if errors.Is(err, worker.ErrBusy) {
		respondError(w, http.StatusConflict, "BUSY", "A run is already in progress", nil)
		return
	}
	respondData(w, http.StatusAccepted, map[string]string{"stage": "update"})
}

// Cancel requests cooperative cancellation of the in-flight run.
//
// Method: POST
// Path: /api/v1/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.runner.Cancel() {
		respondError(w, http.StatusConflict, "NOT_RUNNING", "No run in progress", nil)
		return
	}
	respondData(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// Status reports the worker stage, quiet when idle, plus the stored
// video count.
//
// Method: GET
// Path: /api/v1/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.CountVideos(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to count videos", err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"worker":        h.runner.Status(),
		"videos_in_db":  count,
		"enrichment_on": h.client != nil,
	})
}

// Healthz verifies database liveness.
//
// Method: GET
// Path: /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Database not available", err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "healthy"})
}
