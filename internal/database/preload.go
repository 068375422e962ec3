// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/watchvault/internal/logging"
)

// KnownVideoIDs returns the set of persisted video ids.
func (db *DB) KnownVideoIDs(ctx context.Context) (map[string]bool, error) {
	return db.idSet(ctx, "SELECT id FROM videos")
}

// KnownChannelIDs returns the set of persisted channel ids.
func (db *DB) KnownChannelIDs(ctx context.Context) (map[string]bool, error) {
	return db.idSet(ctx, "SELECT id FROM channels")
}

// DeadVideoIDs returns the set of ids known to be unidentifiable.
func (db *DB) DeadVideoIDs(ctx context.Context) (map[string]bool, error) {
	return db.idSet(ctx, "SELECT id FROM dead_videos_ids")
}

func (db *DB) idSet(ctx context.Context, query string) (map[string]bool, error) {
	rows, err := db.executor().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", query, err)
	}
	defer closeRows(rows)

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// TagMap returns the tag dictionary as text -> surrogate id.
func (db *DB) TagMap(ctx context.Context) (map[string]int64, error) {
	rows, err := db.executor().QueryContext(ctx, "SELECT tag, id FROM tags")
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	defer closeRows(rows)

	out := make(map[string]int64)
	for rows.Next() {
		var tag string
		var id int64
		if err := rows.Scan(&tag, &id); err != nil {
			return nil, err
		}
		out[tag] = id
	}
	return out, rows.Err()
}

// TimestampsByVideo returns every persisted watch timestamp grouped by
// video id, each list sorted ascending.
func (db *DB) TimestampsByVideo(ctx context.Context) (map[string][]time.Time, error) {
	rows, err := db.executor().QueryContext(ctx,
		"SELECT video_id, watched_at FROM videos_timestamps ORDER BY video_id, watched_at")
	if err != nil {
		return nil, fmt.Errorf("load timestamps: %w", err)
	}
	defer closeRows(rows)

	out := make(map[string][]time.Time)
	for rows.Next() {
		var videoID, raw string
		if err := rows.Scan(&videoID, &raw); err != nil {
			return nil, err
		}
		t, err := time.Parse(TimeLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt timestamp %q for video %s: %w", raw, videoID, err)
		}
		out[videoID] = append(out[videoID], t)
	}
	return out, rows.Err()
}

// TagIDsByVideo returns the persisted (video, tag) joins as a skip map.
func (db *DB) TagIDsByVideo(ctx context.Context) (map[string]map[int64]bool, error) {
	rows, err := db.executor().QueryContext(ctx, "SELECT video_id, tag_id FROM videos_tags")
	if err != nil {
		return nil, fmt.Errorf("load video tags: %w", err)
	}
	defer closeRows(rows)

	out := make(map[string]map[int64]bool)
	for rows.Next() {
		var videoID string
		var tagID int64
		if err := rows.Scan(&videoID, &tagID); err != nil {
			return nil, err
		}
		if out[videoID] == nil {
			out[videoID] = make(map[int64]bool)
		}
		out[videoID][tagID] = true
	}
	return out, rows.Err()
}

// TopicsByVideo returns the persisted (video, topic) joins as a skip map.
func (db *DB) TopicsByVideo(ctx context.Context) (map[string]map[string]bool, error) {
	rows, err := db.executor().QueryContext(ctx, "SELECT video_id, topic_id FROM videos_topics")
	if err != nil {
		return nil, fmt.Errorf("load video topics: %w", err)
	}
	defer closeRows(rows)

	out := make(map[string]map[string]bool)
	for rows.Next() {
		var videoID, topicID string
		if err := rows.Scan(&videoID, &topicID); err != nil {
			return nil, err
		}
		if out[videoID] == nil {
			out[videoID] = make(map[string]bool)
		}
		out[videoID][topicID] = true
	}
	return out, rows.Err()
}

// CountVideos returns the number of persisted video rows.
func (db *DB) CountVideos(ctx context.Context) (int64, error) {
	var n int64
	if err := db.executor().QueryRowContext(ctx, "SELECT COUNT(*) FROM videos").Scan(&n); err != nil {
		return 0, fmt.Errorf("count videos: %w", err)
	}
	return n, nil
}

// StaleCandidate is a video eligible for a re-enrichment pass.
type StaleCandidate struct {
	ID          string
	Status      string
	LastUpdated time.Time
}

// StaleCandidates returns every video whose title is identified and whose
// lifecycle is not terminal, ordered by last_updated ascending so the
// stalest rows are visited first.
func (db *DB) StaleCandidates(ctx context.Context) ([]StaleCandidate, error) {
	rows, err := db.executor().QueryContext(ctx,
		"SELECT id, status, last_updated FROM videos WHERE title != 'unknown' AND status != 'deleted' ORDER BY last_updated")
	if err != nil {
		return nil, fmt.Errorf("load stale candidates: %w", err)
	}
	defer closeRows(rows)

	var out []StaleCandidate
	for rows.Next() {
		var c StaleCandidate
		var status, raw sql.NullString
		if err := rows.Scan(&c.ID, &status, &raw); err != nil {
			return nil, err
		}
		c.Status = status.String
		if raw.Valid {
			t, err := time.Parse(TimeLayout, raw.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt last_updated %q for video %s: %w", raw.String, c.ID, err)
			}
			c.LastUpdated = t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// VideoStatus returns the lifecycle state of a video row.
func (db *DB) VideoStatus(ctx context.Context, id string) (string, error) {
	var status sql.NullString
	err := db.executor().QueryRowContext(ctx, "SELECT status FROM videos WHERE id = ?", id).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("video status %s: %w", id, err)
	}
	return status.String, nil
}

// ChannelTitle returns a channel's stored title; ok=false when the
// channel row does not exist.
func (db *DB) ChannelTitle(ctx context.Context, id string) (string, bool, error) {
	var title sql.NullString
	err := db.executor().QueryRowContext(ctx, "SELECT title FROM channels WHERE id = ?", id).Scan(&title)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("channel title %s: %w", id, err)
	}
	return title.String, true, nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logging.Debug().Err(err).Msg("Error closing rows")
	}
}
