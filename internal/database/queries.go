// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package database

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// videoColumns is the stable column order used to build video insert and
// update statements from partial value maps.
var videoColumns = []string{
	"id",
	"published_at",
	"channel_id",
	"title",
	"description",
	"category_id",
	"default_audio_language",
	"duration",
	"last_updated",
	"status",
	"view_count",
	"like_count",
	"dislike_count",
	"comment_count",
	"stream",
}

// buildInsert constructs an INSERT statement from a column list.
func buildInsert(table string, columns []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders)
}

// buildUpdate constructs an unconditional UPDATE keyed by id.
func buildUpdate(table string, columns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", "))
}

// presentColumns filters videoColumns down to the keys present in values,
// preserving the stable order.
func presentColumns(values map[string]any) ([]string, []any) {
	var cols []string
	var args []any
	for _, c := range videoColumns {
		if v, ok := values[c]; ok {
			cols = append(cols, c)
			args = append(args, v)
		}
	}
	return cols, args
}

// AddChannel inserts a channel row. ok=false means the id already exists.
func (db *DB) AddChannel(ctx context.Context, id, title string) (bool, error) {
	var titleValue any
	if title != "" {
		titleValue = title
	}
	return db.Execute(ctx, buildInsert("channels", []string{"id", "title"}), []any{id, titleValue}, true)
}

// UpdateChannelTitle rewrites a channel's title.
func (db *DB) UpdateChannelTitle(ctx context.Context, id, title string) (bool, error) {
	return db.Execute(ctx, "UPDATE channels SET title = ? WHERE id = ?", []any{title, id}, true)
}

// AddVideo inserts a video row from a column-keyed value map. Unknown
// keys are ignored; "id" is required.
func (db *DB) AddVideo(ctx context.Context, values map[string]any) (bool, error) {
	cols, args := presentColumns(values)
	if len(cols) == 0 {
		return false, fmt.Errorf("add video: no known columns in %v", values)
	}
	return db.Execute(ctx, buildInsert("videos", cols), args, true)
}

// UpdateVideo applies an unconditional update of the given columns on the
// video row.
func (db *DB) UpdateVideo(ctx context.Context, id string, values map[string]any) (bool, error) {
	cols, args := presentColumns(values)
	if len(cols) == 0 {
		return false, fmt.Errorf("update video %s: no known columns in %v", id, values)
	}
	args = append(args, id)
	return db.Execute(ctx, buildUpdate("videos", cols), args, true)
}

// AddTag inserts a tag into the dictionary and returns its surrogate id.
// ok=false means the tag already existed; the id is not resolved in that
// case (callers hold a preloaded tag map).
func (db *DB) AddTag(ctx context.Context, tag string) (int64, bool, error) {
	res, err := db.executor().ExecContext(ctx, buildInsert("tags", []string{"tag"}), tag)
	if err != nil {
		if isConstraintErr(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("add tag %q: %w", tag, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("add tag %q: resolve id: %w", tag, err)
	}
	return id, true, nil
}

// AddTagToVideo inserts a (video, tag) join row. Duplicate joins are
// common in raw records, so integrity failures are never logged here.
func (db *DB) AddTagToVideo(ctx context.Context, videoID string, tagID int64) (bool, error) {
	return db.Execute(ctx, buildInsert("videos_tags", []string{"video_id", "tag_id"}), []any{videoID, tagID}, false)
}

// AddTopicToVideo inserts a (video, topic) join row.
func (db *DB) AddTopicToVideo(ctx context.Context, videoID, topicID string) (bool, error) {
	return db.Execute(ctx, buildInsert("videos_topics", []string{"video_id", "topic_id"}), []any{videoID, topicID}, true)
}

// AddTime records a watch event.
func (db *DB) AddTime(ctx context.Context, videoID string, watchedAt time.Time) (bool, error) {
	return db.Execute(ctx, buildInsert("videos_timestamps", []string{"video_id", "watched_at"}),
		[]any{videoID, watchedAt.Format(TimeLayout)}, true)
}

// DeleteTime removes a watch event.
func (db *DB) DeleteTime(ctx context.Context, videoID string, watchedAt time.Time) (bool, error) {
	return db.Execute(ctx, "DELETE FROM videos_timestamps WHERE video_id = ? AND watched_at = ?",
		[]any{videoID, watchedAt.Format(TimeLayout)}, true)
}

// AddDeadVideo records an id known to be unidentifiable.
func (db *DB) AddDeadVideo(ctx context.Context, id string) (bool, error) {
	return db.Execute(ctx, buildInsert("dead_videos_ids", []string{"id"}), []any{id}, true)
}

// DeleteDeadVideo removes an id from the dead set once identifying data
// arrives.
func (db *DB) DeleteDeadVideo(ctx context.Context, id string) (bool, error) {
	return db.Execute(ctx, "DELETE FROM dead_videos_ids WHERE id = ?", []any{id}, true)
}
