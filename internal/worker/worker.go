// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package worker runs the pipeline on a single background goroutine.
//
// Exactly one ingestion or update may be in flight; starting another
// while one is alive returns ErrBusy. Progress events flow through a
// buffered single-producer single-consumer channel drained by the event
// stream handler.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/tomtom215/watchvault/internal/ingest"
	"github.com/tomtom215/watchvault/internal/logging"
)

// ErrBusy is returned when a run is already in flight.
var ErrBusy = errors.New("a run is already in progress")

// QuietStage is reported when no pipeline stage is active.
const QuietStage = "quiet"

// Run is the unit of work the runner executes.
type Run func(ctx context.Context, emit ingest.Emitter) error

// Status describes the runner to status endpoints.
type Status struct {
	Stage   string `json:"stage"`
	Running bool   `json:"running"`
}

// Runner owns the background worker goroutine.
type Runner struct {
	mu      sync.Mutex
	running bool
	stage   string
	cancel  context.CancelFunc
	events  chan ingest.Event
}

// New creates a Runner whose event channel buffers up to size events.
func New(size int) *Runner {
	if size <= 0 {
		size = 256
	}
	return &Runner{events: make(chan ingest.Event, size)}
}

// Events is the progress stream. Single consumer; events are dropped when
// nobody drains the channel.
func (r *Runner) Events() <-chan ingest.Event {
	return r.events
}

// Status reports the active stage, or quiet when idle.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return Status{Stage: QuietStage}
	}
	return Status{Stage: r.stage, Running: true}
}

// Start launches run on the background goroutine. It returns ErrBusy
// while a previous run is alive.
func (r *Runner) Start(stage string, run Run) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.running = true
	r.stage = stage
	r.cancel = cancel
	r.mu.Unlock()

	logging.Info().Str("stage", stage).Msg("Worker run started")
	go func() {
		defer cancel()
		if err := run(ctx, r.publish); err != nil {
			// The coordinator already reported the failure on the stream.
			logging.Error().Err(err).Str("stage", stage).Msg("Worker run failed")
		}
		r.publish(ingest.Event{Kind: ingest.KindStop})

		r.mu.Lock()
		r.running = false
		r.stage = ""
		r.cancel = nil
		r.mu.Unlock()
		logging.Info().Str("stage", stage).Msg("Worker run finished")
	}()
	return nil
}

// Cancel requests cooperative cancellation of the in-flight run. It
// reports whether a run was alive to cancel.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// publish forwards a pipeline event to the stream, tracking the active
// stage and dropping events when the consumer has fallen behind.
func (r *Runner) publish(ev ingest.Event) {
	if stage, ok := ev.Payload.(ingest.Stage); ok && ev.Kind == ingest.KindStage {
		r.mu.Lock()
		r.stage = stage.Stage
		r.mu.Unlock()
	}
	select {
	case r.events <- ev:
	default:
		logging.Warn().Str("kind", string(ev.Kind)).Msg("Progress event dropped, stream consumer too slow")
	}
}
