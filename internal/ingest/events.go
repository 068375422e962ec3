// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package ingest drives the archive-scan, reconcile, enrich, persist
// pipeline and the incremental re-enrichment pass over stale rows.
package ingest

import "time"

// Kind discriminates progress stream events.
type Kind string

// Event kinds emitted over the progress stream.
const (
	KindStage    Kind = "stage"
	KindProgress Kind = "takeout_progress"
	KindErrors   Kind = "errors"
	KindStats    Kind = "stats"
	KindStop     Kind = "stop"
)

// Event is one entry in the progress stream. Payload is one of the
// typed payloads below, keyed by Kind.
type Event struct {
	Kind    Kind `json:"kind"`
	Payload any  `json:"payload"`
}

// Stage names the pipeline phase currently running. An empty stage means
// the worker is quiet.
type Stage struct {
	Stage string `json:"stage"`
}

// Progress is a periodic tick during a run.
type Progress struct {
	Percent          float64 `json:"percent"`
	RecordsProcessed int     `json:"records_processed"`
	RecordsUpdated   int     `json:"records_updated"`
}

// ErrorReport carries a user-visible error message.
type ErrorReport struct {
	Message string `json:"message"`
}

// IngestSummary is the terminal stats record of an ingestion run.
type IngestSummary struct {
	RecordsProcessed int   `json:"records_processed"`
	RecordsInserted  int   `json:"records_inserted"`
	RecordsUpdated   int   `json:"records_updated"`
	RecordsInDB      int64 `json:"records_in_db"`
}

// UpdateSummary is the terminal stats record of an update pass.
type UpdateSummary struct {
	RecordsProcessed   int `json:"records_processed"`
	RecordsUpdated     int `json:"records_updated"`
	NewlyInactive      int `json:"newly_inactive"`
	NewlyActive        int `json:"newly_active"`
	DeletedFromYouTube int `json:"deleted_from_youtube"`
}

// Emitter receives progress events as a run produces them. Emitters must
// not block for long; the pipeline calls them inline between records.
type Emitter func(Event)

// emit is a nil-safe send.
func (e Emitter) emit(kind Kind, payload any) {
	if e != nil {
		e(Event{Kind: kind, Payload: payload})
	}
}

// now is swapped in tests.
var now = time.Now
