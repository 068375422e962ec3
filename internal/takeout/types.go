// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package takeout parses Google Takeout watch-history archives into raw
// watch events.
//
// An archive is one exported watch-history.html file. The input path may
// be a single file, a directory of watch-history*.html files, or a
// directory of extracted takeout-<TIMESTAMP>Z-<NN> bundles; the first
// matching shape decides the search mode for the whole invocation.
package takeout

import (
	"errors"
	"time"
)

// UnknownID is the sentinel video (and channel) id for events whose
// video cannot be identified from the archive text.
const UnknownID = "unknown"

// ErrCorruptArchive marks an archive that pruned down to zero watch
// records. The run must abort before committing work from that file.
var ErrCorruptArchive = errors.New("archive contains no watch records")

// ErrBadTimestamp marks an event whose timestamp does not match the
// archive's fixed format. The format is expected to be stable, so this
// aborts the run rather than skipping the event.
var ErrBadTimestamp = errors.New("unparseable watch timestamp")

// Event is one raw watch event lifted from an archive record div.
type Event struct {
	// VideoID is the platform video id, or UnknownID when the record
	// text carries no resolvable video URL.
	VideoID string

	// Title is the video title as rendered in the archive, empty when
	// the anchor text was just the URL.
	Title string

	// ChannelID and ChannelTitle come from the channel anchor, when
	// present.
	ChannelID    string
	ChannelTitle string

	// WatchedAt is the archive timestamp with its zone token stripped.
	// The instant is therefore wall time in an unknown local zone.
	WatchedAt time.Time
}

// Options controls archive scanning.
type Options struct {
	// PruneInPlace writes the pruned form of a raw archive back to its
	// original path so later scans skip the rewrite pass.
	PruneInPlace bool
}

// Visitor receives the scan stream. File fires before each archive file
// with its position in the discovered set; Event fires once per watch
// event. A non-nil error from Event aborts the scan.
type Visitor struct {
	File  func(index, total int, path string)
	Event func(ev Event) error
}
