// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package database

import (
	"context"
	"fmt"
)

// schemaStatements creates the store schema. Idempotent: every statement
// is IF NOT EXISTS. Videos own their timestamps, tag joins and topic
// joins (cascade on update/delete); channels own videos; tags and topics
// are shared dictionaries.
//
// Wall times are TEXT in TimeLayout form, never TIMESTAMP: a TIMESTAMP
// affinity makes the driver hand back time.Time values and the stored
// string no longer round-trips through a string scan destination.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		title TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		channel_id TEXT,
		title TEXT,
		assignable BOOLEAN,
		etag TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS topics (
		id TEXT PRIMARY KEY,
		topic TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tag TEXT UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		published_at TEXT,
		channel_id TEXT,
		title TEXT,
		description TEXT,
		category_id TEXT,
		default_audio_language TEXT,
		duration INTEGER,
		last_updated TEXT,
		status TEXT,
		view_count INTEGER,
		like_count INTEGER,
		dislike_count INTEGER,
		comment_count INTEGER,
		stream TEXT,
		FOREIGN KEY (channel_id) REFERENCES channels (id)
			ON UPDATE CASCADE ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS videos_tags (
		video_id TEXT NOT NULL,
		tag_id INTEGER NOT NULL,
		UNIQUE (video_id, tag_id),
		FOREIGN KEY (video_id) REFERENCES videos (id)
			ON UPDATE CASCADE ON DELETE CASCADE,
		FOREIGN KEY (tag_id) REFERENCES tags (id)
			ON UPDATE CASCADE ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS videos_topics (
		video_id TEXT NOT NULL,
		topic_id TEXT NOT NULL,
		UNIQUE (video_id, topic_id),
		FOREIGN KEY (video_id) REFERENCES videos (id)
			ON UPDATE CASCADE ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS videos_timestamps (
		video_id TEXT NOT NULL,
		watched_at TEXT NOT NULL,
		UNIQUE (video_id, watched_at),
		FOREIGN KEY (video_id) REFERENCES videos (id)
			ON UPDATE CASCADE ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS dead_videos_ids (
		id TEXT PRIMARY KEY
	)`,
}

// EnsureSchema creates all tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.executor().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
