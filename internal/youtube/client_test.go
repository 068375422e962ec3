// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := New(Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Parts:   "snippet,contentDetails,statistics",
	})
	return client, srv
}

func TestVideoInfo(t *testing.T) {
	t.Run("decodes items and sends projection", func(t *testing.T) {
		client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/videos" {
				t.Errorf("path = %s", r.URL.Path)
			}
			q := r.URL.Query()
			if q.Get("id") != "abc123" {
				t.Errorf("id = %s", q.Get("id"))
			}
			if q.Get("key") != "test-key" {
				t.Errorf("key = %s", q.Get("key"))
			}
			if q.Get("part") != "snippet,contentDetails,statistics" {
				t.Errorf("part = %s", q.Get("part"))
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"items":[{"id":"abc123","snippet":{"title":"A Title"}}]}`))
		})
		defer srv.Close()

		items, err := client.VideoInfo(context.Background(), "abc123")
		if err != nil {
			t.Fatalf("VideoInfo: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("items = %d, want 1", len(items))
		}
		if items[0]["id"] != "abc123" {
			t.Errorf("item id = %v", items[0]["id"])
		}
	})

	t.Run("empty items for unavailable video", func(t *testing.T) {
		client, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"items":[]}`))
		})
		defer srv.Close()

		items, err := client.VideoInfo(context.Background(), "gone")
		if err != nil {
			t.Fatalf("VideoInfo: %v", err)
		}
		if len(items) != 0 {
			t.Errorf("items = %d, want 0", len(items))
		}
	})

	t.Run("keyInvalid maps to ErrAPIKey", func(t *testing.T) {
		client, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Bad Request","errors":[{"reason":"keyInvalid"}]}}`))
		})
		defer srv.Close()

		_, err := client.VideoInfo(context.Background(), "abc")
		if !errors.Is(err, ErrAPIKey) {
			t.Errorf("err = %v, want ErrAPIKey", err)
		}
	})

	t.Run("server error is transient", func(t *testing.T) {
		client, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend"}}`))
		})
		defer srv.Close()

		_, err := client.VideoInfo(context.Background(), "abc")
		if err == nil {
			t.Fatal("expected error")
		}
		if errors.Is(err, ErrAPIKey) {
			t.Error("transient failure must not map to ErrAPIKey")
		}
	})
}

func TestCategories(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videoCategories" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"10","etag":"e1","snippet":{"title":"Music","assignable":true,"channelId":"UCBR8"}}]}`))
	})
	defer srv.Close()

	items, err := client.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(items) != 1 || items[0]["id"] != "10" {
		t.Errorf("items = %v", items)
	}
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	client, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{}`))
	})
	defer srv.Close()

	for i := 0; i < 5; i++ {
		_, _ = client.VideoInfo(context.Background(), "abc")
	}
	if calls > 3 {
		t.Errorf("breaker did not open: %d calls reached the server", calls)
	}
}
