// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/watchvault/internal/config"
	"github.com/tomtom215/watchvault/internal/database"
	"github.com/tomtom215/watchvault/internal/ingest"
	"github.com/tomtom215/watchvault/internal/takeout"
	"github.com/tomtom215/watchvault/internal/worker"
)

type stubEnricher struct{}

func (stubEnricher) VideoInfo(context.Context, string) ([]map[string]any, error) {
	return nil, nil
}

func newTestHandler(t *testing.T) (*Handler, *worker.Runner) {
	t.Helper()
	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}

	cfg := &config.Config{}
	cfg.Reconcile.MaxTimeDifference = 25 * time.Hour
	cfg.Enrich.RetryAttempts = 1

	runner := worker.New(64)
	return NewHandler(db, stubEnricher{}, runner, cfg), runner
}

func waitIdle(t *testing.T, runner *worker.Runner) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !runner.Status().Running {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("worker never went idle")
}

func writeTestArchive(t *testing.T) string {
	t.Helper()
	content := takeout.PrunedMarker + `
<div class="content-cell">Watched <a href="https://www.youtube.com/watch?v=abc">Hello</a>
Jun 1, 2019, 10:00:00 AM PDT</div>
`
	path := filepath.Join(t.TempDir(), "watch-history.html")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := Router(h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestStatusQuiet(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := Router(h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Data struct {
			Worker worker.Status `json:"worker"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Data.Worker.Stage != worker.QuietStage || body.Data.Worker.Running {
		t.Errorf("worker status = %+v", body.Data.Worker)
	}
}

func TestTakeoutValidation(t *testing.T) {
	h, _ := newTestHandler(t)
	srv := Router(h)

	t.Run("malformed body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/takeout", strings.NewReader("{")))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/takeout", strings.NewReader(`{}`)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestTakeoutRunsToCompletion(t *testing.T) {
	h, runner := newTestHandler(t)
	srv := Router(h)
	path := writeTestArchive(t)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"path": ` + jsonQuote(path) + `}`)
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/takeout", body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	waitIdle(t, runner)

	status, err := h.store.VideoStatus(context.Background(), "abc")
	if err != nil {
		t.Fatal(err)
	}
	if status != "inactive" {
		t.Errorf("status = %q, want inactive from empty enrichment", status)
	}
}

// jsonQuote JSON-quotes a string for request bodies.
func jsonQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestBusyConflict(t *testing.T) {
	h, runner := newTestHandler(t)
	srv := Router(h)

	release := make(chan struct{})
	if err := runner.Start("takeout", func(ctx context.Context, emit ingest.Emitter) error {
		<-release
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	defer close(release)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"cutoff_seconds": 60}`)
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/update", body))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 while busy", rec.Code)
	}
}

func TestCancel(t *testing.T) {
	h, runner := newTestHandler(t)
	srv := Router(h)

	t.Run("idle", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cancel", nil))
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409 with no run", rec.Code)
		}
	})

	t.Run("running", func(t *testing.T) {
		if err := runner.Start("takeout", func(ctx context.Context, emit ingest.Emitter) error {
			<-ctx.Done()
			return nil
		}); err != nil {
			t.Fatal(err)
		}

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cancel", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, body %s", rec.Code, rec.Body)
		}
		waitIdle(t, runner)
	})
}

func TestEventsStream(t *testing.T) {
	h, runner := newTestHandler(t)

	if err := runner.Start("takeout", func(ctx context.Context, emit ingest.Emitter) error {
		emit(ingest.Event{Kind: ingest.KindStats, Payload: ingest.IngestSummary{RecordsProcessed: 2}})
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, runner)

	rec := httptest.NewRecorder()
	h.Events(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))

	out := rec.Body.String()
	if !strings.Contains(out, "event: stats") {
		t.Errorf("stream missing stats event:\n%s", out)
	}
	if !strings.Contains(out, `"records_processed":2`) {
		t.Errorf("stream missing stats payload:\n%s", out)
	}
	if !strings.Contains(out, "event: stop") {
		t.Errorf("stream missing terminal stop event:\n%s", out)
	}
	if !strings.Contains(out, "id: ") {
		t.Errorf("stream missing id lines:\n%s", out)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}
}
