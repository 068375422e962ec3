// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package normalize projects raw video platform API items onto the
// persisted field set.
//
// The API nests fields under part objects (snippet, contentDetails,
// statistics, topicDetails, liveStreamingDetails). Normalization flattens
// whitelisted keys wherever they appear, renames them to their column
// names, and converts values to their persisted types. Everything else is
// dropped.
package normalize

import (
	"strconv"
	"strings"

	"github.com/tomtom215/watchvault/internal/logging"
)

// KeyColumns is the whitelist of retained API fields, mapping the wire
// name to the persisted column name. Keys absent from this map are
// discarded during normalization.
var KeyColumns = map[string]string{
	"id":                   "id",
	"publishedAt":          "published_at",
	"channelId":            "channel_id",
	"title":                "title",
	"description":          "description",
	"channelTitle":         "channel_title",
	"tags":                 "tags",
	"categoryId":           "category_id",
	"defaultAudioLanguage": "default_audio_language",
	"duration":             "duration",
	"viewCount":            "view_count",
	"likeCount":            "like_count",
	"dislikeCount":         "dislike_count",
	"commentCount":         "comment_count",
	"relevantTopicIds":     "relevant_topic_ids",
	// actualStartTime is not persisted as an instant; its presence sets
	// the stream flag column.
	"actualStartTime": "stream",
}

// Subtrees that duplicate retained fields under locale- or size-specific
// variants; never descended.
var skippedSubtrees = map[string]bool{
	"localized":  true,
	"thumbnails": true,
}

// Item flattens a raw API video item into a column-keyed map. The
// returned map holds only persisted columns with converted values; its
// length is the retained-field count used for lifecycle classification.
func Item(raw map[string]any) map[string]any {
	out := make(map[string]any)
	flatten(raw, out)
	return out
}

func flatten(node map[string]any, out map[string]any) {
	for key, value := range node {
		if skippedSubtrees[key] {
			continue
		}
		if sub, ok := value.(map[string]any); ok {
			flatten(sub, out)
			continue
		}
		column, ok := KeyColumns[key]
		if !ok {
			continue
		}
		if converted, ok := convert(key, value); ok {
			out[column] = converted
		}
	}
}

// convert coerces a whitelisted value to its persisted representation.
// The second return is false when the value is unusable and the field
// should be dropped entirely.
func convert(key string, value any) (any, bool) {
	switch key {
	case "duration":
		s, ok := value.(string)
		if !ok {
			return nil, false
		}
		secs, err := DurationSeconds(s)
		if err != nil {
			logging.Warn().Err(err).Msg("Dropping unparseable duration")
			return nil, false
		}
		return secs, true

	case "publishedAt":
		s, ok := value.(string)
		if !ok {
			return nil, false
		}
		return strings.Replace(s, "T", " ", 1), true

	case "actualStartTime":
		// Presence of a live-streaming start marks the record as a
		// stream; the instant itself is not retained.
		return "true", true

	case "viewCount", "likeCount", "dislikeCount", "commentCount":
		s, ok := value.(string)
		if !ok {
			return nil, false
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true

	case "tags":
		return toStringSlice(value)

	case "relevantTopicIds":
		ids, ok := toStringSlice(value)
		if !ok {
			return nil, false
		}
		// Parent topics commonly appear once per child; keep first
		// occurrences only.
		seen := make(map[string]bool, len(ids))
		deduped := ids[:0]
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				deduped = append(deduped, id)
			}
		}
		return deduped, true

	default:
		s, ok := value.(string)
		if !ok {
			return nil, false
		}
		return s, true
	}
}

func toStringSlice(value any) ([]string, bool) {
	items, ok := value.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
