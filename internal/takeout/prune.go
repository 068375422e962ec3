// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package takeout

import "strings"

// PrunedMarker prefixes an archive that has already been pruned. Raw
// exports never begin with an HTML comment, so the marker doubles as the
// shape detector.
const PrunedMarker = "<!--watchvault-pruned-->"

// pruneRewrites is the fixed sequence of literal substring rewrites
// applied to a raw export: Material-Design bundling classes are collapsed
// to stable names, caption cells are renamed so the parser skips them,
// and newlines are injected around tags so record text keeps its line
// structure after HTML parsing.
var pruneRewrites = []struct {
	old string
	new string
}{
	{`<div class="outer-cell mdl-cell mdl-cell--12-col mdl-shadow--2dp">`, `<div class="outer-cell">`},
	{`<div class="content-cell mdl-cell mdl-cell--6-col mdl-typo--body-1">`, `<div class="content-cell">`},
	{`<div class="content-cell mdl-cell mdl-cell--12-col mdl-typo--caption">`, `<div class="caption-cell">`},
	{`<div class="content-cell mdl-cell mdl-cell--6-col mdl-typo--caption">`, `<div class="caption-cell">`},
	{`<div class="mdl-grid">`, `<div class="grid">`},
	{"<br>", "\n"},
	{"<br/>", "\n"},
	{"<div", "\n<div"},
	{"</div>", "</div>\n"},
}

// Prune converts a raw export into the pruned form. Already-pruned input
// is returned unchanged.
func Prune(content string) string {
	if IsPruned(content) {
		return content
	}
	// Drop the export header; records start at the first outer cell.
	if idx := strings.Index(content, `<div class="outer-cell`); idx >= 0 {
		content = content[idx:]
	}
	for _, rw := range pruneRewrites {
		content = strings.ReplaceAll(content, rw.old, rw.new)
	}
	return PrunedMarker + "\n" + content
}

// IsPruned reports whether the archive content is already in pruned form.
func IsPruned(content string) bool {
	return strings.HasPrefix(content, PrunedMarker)
}
