// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package database

import (
	"context"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return db
}

func mustAddVideo(t *testing.T, db *DB, values map[string]any) {
	t.Helper()
	ok, err := db.AddVideo(context.Background(), values)
	if err != nil {
		t.Fatalf("add video: %v", err)
	}
	if !ok {
		t.Fatalf("add video %v not ok", values["id"])
	}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Errorf("second EnsureSchema: %v", err)
	}
}

func TestVideoInsertUpdate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if _, err := db.AddChannel(ctx, "UCchan", "A Channel"); err != nil {
		t.Fatal(err)
	}
	mustAddVideo(t, db, map[string]any{
		"id":         "abc",
		"channel_id": "UCchan",
		"title":      "First",
		"status":     "active",
		"duration":   int64(120),
		"ignored":    "dropped silently",
	})

	t.Run("duplicate insert is integrity failure", func(t *testing.T) {
		ok, err := db.AddVideo(ctx, map[string]any{"id": "abc", "channel_id": "UCchan"})
		if err != nil {
			t.Fatalf("unexpected fatal error: %v", err)
		}
		if ok {
			t.Error("duplicate insert reported ok")
		}
	})

	t.Run("unknown channel is integrity failure", func(t *testing.T) {
		ok, err := db.AddVideo(ctx, map[string]any{"id": "fkless", "channel_id": "UCmissing"})
		if err != nil {
			t.Fatalf("unexpected fatal error: %v", err)
		}
		if ok {
			t.Error("insert with dead channel FK reported ok")
		}
	})

	t.Run("update rewrites columns", func(t *testing.T) {
		ok, err := db.UpdateVideo(ctx, "abc", map[string]any{"title": "Second", "status": "inactive"})
		if err != nil || !ok {
			t.Fatalf("update: ok=%v err=%v", ok, err)
		}
		var title, status string
		err = db.conn.QueryRow("SELECT title, status FROM videos WHERE id = 'abc'").Scan(&title, &status)
		if err != nil {
			t.Fatal(err)
		}
		if title != "Second" || status != "inactive" {
			t.Errorf("title=%q status=%q", title, status)
		}
	})
}

func TestTagsAndJoins(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if _, err := db.AddChannel(ctx, "UCchan", "c"); err != nil {
		t.Fatal(err)
	}
	mustAddVideo(t, db, map[string]any{"id": "v1", "channel_id": "UCchan"})

	id, ok, err := db.AddTag(ctx, "music")
	if err != nil || !ok {
		t.Fatalf("add tag: ok=%v err=%v", ok, err)
	}
	if id == 0 {
		t.Error("tag id not resolved")
	}

	t.Run("duplicate tag reports existing", func(t *testing.T) {
		_, ok, err := db.AddTag(ctx, "music")
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("duplicate tag reported ok")
		}
	})

	t.Run("join rows unique", func(t *testing.T) {
		if ok, err := db.AddTagToVideo(ctx, "v1", id); err != nil || !ok {
			t.Fatalf("join: ok=%v err=%v", ok, err)
		}
		if ok, err := db.AddTagToVideo(ctx, "v1", id); err != nil || ok {
			t.Errorf("duplicate join: ok=%v err=%v", ok, err)
		}
	})

	t.Run("cascade on video delete", func(t *testing.T) {
		if _, err := db.conn.Exec("DELETE FROM videos WHERE id = 'v1'"); err != nil {
			t.Fatal(err)
		}
		var n int
		if err := db.conn.QueryRow("SELECT COUNT(*) FROM videos_tags").Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("join rows survived video delete: %d", n)
		}
	})
}

func TestTimestamps(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if _, err := db.AddChannel(ctx, "unknown", ""); err != nil {
		t.Fatal(err)
	}
	mustAddVideo(t, db, map[string]any{"id": "v1", "channel_id": "unknown"})

	at := time.Date(2019, 6, 1, 10, 0, 0, 0, time.UTC)
	if ok, err := db.AddTime(ctx, "v1", at); err != nil || !ok {
		t.Fatalf("add time: ok=%v err=%v", ok, err)
	}
	if ok, err := db.AddTime(ctx, "v1", at); err != nil || ok {
		t.Errorf("duplicate time: ok=%v err=%v", ok, err)
	}

	got, err := db.TimestampsByVideo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got["v1"]) != 1 || !got["v1"][0].Equal(at) {
		t.Errorf("TimestampsByVideo = %v", got)
	}

	if ok, err := db.DeleteTime(ctx, "v1", at); err != nil || !ok {
		t.Fatalf("delete time: ok=%v err=%v", ok, err)
	}
	got, _ = db.TimestampsByVideo(ctx)
	if len(got["v1"]) != 0 {
		t.Errorf("timestamp survived delete: %v", got)
	}
}

// Wall-time columns must carry TEXT affinity. With a TIMESTAMP
// declaration the driver converts on scan and the stored string comes
// back RFC3339, which no longer matches TimeLayout.
func TestTimestampColumnsStayText(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if _, err := db.AddChannel(ctx, "unknown", ""); err != nil {
		t.Fatal(err)
	}
	at := time.Date(2019, 1, 2, 3, 4, 5, 0, time.UTC)
	mustAddVideo(t, db, map[string]any{
		"id":           "v1",
		"channel_id":   "unknown",
		"title":        "Known",
		"last_updated": at.Format(TimeLayout),
	})
	if ok, err := db.AddTime(ctx, "v1", at); err != nil || !ok {
		t.Fatalf("add time: ok=%v err=%v", ok, err)
	}

	var rawWatched, rawUpdated string
	if err := db.conn.QueryRow("SELECT watched_at FROM videos_timestamps WHERE video_id = 'v1'").Scan(&rawWatched); err != nil {
		t.Fatal(err)
	}
	if err := db.conn.QueryRow("SELECT last_updated FROM videos WHERE id = 'v1'").Scan(&rawUpdated); err != nil {
		t.Fatal(err)
	}
	want := "2019-01-02 03:04:05"
	if rawWatched != want {
		t.Errorf("watched_at stored as %q, want %q", rawWatched, want)
	}
	if rawUpdated != want {
		t.Errorf("last_updated stored as %q, want %q", rawUpdated, want)
	}

	times, err := db.TimestampsByVideo(ctx)
	if err != nil {
		t.Fatalf("TimestampsByVideo after write: %v", err)
	}
	if len(times["v1"]) != 1 || !times["v1"][0].Equal(at) {
		t.Errorf("TimestampsByVideo = %v", times)
	}
	cands, err := db.StaleCandidates(ctx)
	if err != nil {
		t.Fatalf("StaleCandidates after write: %v", err)
	}
	if len(cands) != 1 || !cands[0].LastUpdated.Equal(at) {
		t.Errorf("StaleCandidates = %+v", cands)
	}
}

func TestPreloadSets(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if _, err := db.AddChannel(ctx, "UCchan", "c"); err != nil {
		t.Fatal(err)
	}
	mustAddVideo(t, db, map[string]any{"id": "v1", "channel_id": "UCchan", "title": "T"})
	if _, err := db.AddDeadVideo(ctx, "v2"); err != nil {
		t.Fatal(err)
	}

	videos, err := db.KnownVideoIDs(ctx)
	if err != nil || !videos["v1"] {
		t.Errorf("KnownVideoIDs = %v, err %v", videos, err)
	}
	channels, err := db.KnownChannelIDs(ctx)
	if err != nil || !channels["UCchan"] {
		t.Errorf("KnownChannelIDs = %v, err %v", channels, err)
	}
	dead, err := db.DeadVideoIDs(ctx)
	if err != nil || !dead["v2"] {
		t.Errorf("DeadVideoIDs = %v, err %v", dead, err)
	}
	if ok, err := db.DeleteDeadVideo(ctx, "v2"); err != nil || !ok {
		t.Errorf("DeleteDeadVideo: ok=%v err=%v", ok, err)
	}
}

func TestStaleCandidates(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if _, err := db.AddChannel(ctx, "UCchan", "c"); err != nil {
		t.Fatal(err)
	}
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	mustAddVideo(t, db, map[string]any{"id": "old", "channel_id": "UCchan", "title": "A", "status": "active", "last_updated": old.Format(TimeLayout)})
	mustAddVideo(t, db, map[string]any{"id": "new", "channel_id": "UCchan", "title": "B", "status": "inactive", "last_updated": newer.Format(TimeLayout)})
	mustAddVideo(t, db, map[string]any{"id": "dead", "channel_id": "UCchan", "title": "unknown", "status": "inactive", "last_updated": old.Format(TimeLayout)})
	mustAddVideo(t, db, map[string]any{"id": "gone", "channel_id": "UCchan", "title": "C", "status": "deleted", "last_updated": old.Format(TimeLayout)})

	got, err := db.StaleCandidates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("candidates = %v, want 2", got)
	}
	if got[0].ID != "old" || got[1].ID != "new" {
		t.Errorf("order = %v, want stalest first", got)
	}
	if got[0].Status != "active" || got[1].Status != "inactive" {
		t.Errorf("statuses = %q, %q", got[0].Status, got[1].Status)
	}
	if !got[0].LastUpdated.Equal(old) {
		t.Errorf("LastUpdated = %v", got[0].LastUpdated)
	}
}

func TestSeedTopicsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.SeedTopics(ctx); err != nil {
		t.Fatal(err)
	}
	var first int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM topics").Scan(&first); err != nil {
		t.Fatal(err)
	}
	if first == 0 {
		t.Fatal("no topics seeded")
	}

	if err := db.SeedTopics(ctx); err != nil {
		t.Fatal(err)
	}
	var second int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM topics").Scan(&second); err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("reseed changed row count: %d -> %d", first, second)
	}
}

type staticCategories struct {
	items []map[string]any
}

func (s *staticCategories) Categories(context.Context) ([]map[string]any, error) {
	return s.items, nil
}

func TestRefreshCategoriesIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	client := &staticCategories{items: []map[string]any{
		{"id": "10", "etag": "e1", "snippet": map[string]any{"title": "Music", "assignable": true, "channelId": "UCBR8"}},
		{"id": "20", "etag": "e2", "snippet": map[string]any{"title": "Gaming", "assignable": true, "channelId": "UCBR8"}},
	}}

	for i := 0; i < 2; i++ {
		if err := db.RefreshCategories(ctx, client); err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
	}

	var n int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM categories").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("categories = %d, want 2", n)
	}
	var etag string
	if err := db.conn.QueryRow("SELECT etag FROM categories WHERE id = '10'").Scan(&etag); err != nil {
		t.Fatal(err)
	}
	if etag != "e1" {
		t.Errorf("etag = %q", etag)
	}
}

func TestBatchCommitVisibility(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AddChannel(ctx, "UCchan", "c"); err != nil {
		t.Fatal(err)
	}
	mustAddVideo(t, db, map[string]any{"id": "v1", "channel_id": "UCchan"})
	if err := db.Commit(); err != nil {
		t.Fatal(err)
	}

	videos, err := db.KnownVideoIDs(ctx)
	if err != nil || !videos["v1"] {
		t.Errorf("committed batch not visible: %v err %v", videos, err)
	}

	if err := db.Compact(ctx); err != nil {
		t.Errorf("compact: %v", err)
	}
}

func TestRollbackDiscardsBatch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.Rollback(); err != nil {
		t.Errorf("rollback with no batch: %v", err)
	}

	if err := db.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AddChannel(ctx, "UCchan", "c"); err != nil {
		t.Fatal(err)
	}
	mustAddVideo(t, db, map[string]any{"id": "v1", "channel_id": "UCchan"})
	if err := db.Rollback(); err != nil {
		t.Fatal(err)
	}

	videos, err := db.KnownVideoIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if videos["v1"] {
		t.Error("rolled-back row still visible")
	}

	// A fresh batch after rollback must start clean and commit normally.
	if err := db.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AddChannel(ctx, "UCother", "c"); err != nil {
		t.Fatal(err)
	}
	mustAddVideo(t, db, map[string]any{"id": "v2", "channel_id": "UCother"})
	if err := db.Commit(); err != nil {
		t.Fatal(err)
	}
	videos, _ = db.KnownVideoIDs(ctx)
	if videos["v1"] || !videos["v2"] {
		t.Errorf("after rollback+commit: %v", videos)
	}
}

func TestBuildQueries(t *testing.T) {
	if got := buildInsert("tags", []string{"tag"}); got != "INSERT INTO tags (tag) VALUES (?)" {
		t.Errorf("buildInsert = %q", got)
	}
	if got := buildInsert("videos_tags", []string{"video_id", "tag_id"}); got != "INSERT INTO videos_tags (video_id, tag_id) VALUES (?, ?)" {
		t.Errorf("buildInsert = %q", got)
	}
	if got := buildUpdate("videos", []string{"title", "status"}); got != "UPDATE videos SET title = ?, status = ? WHERE id = ?" {
		t.Errorf("buildUpdate = %q", got)
	}
}
