// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package takeout

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/tomtom215/watchvault/internal/logging"
)

const (
	removedPrefix   = "Watched a video that has been removed"
	storyPrefix     = "Watched story"
	watchHrefMarker = "watch?v="
	channelPrefix   = "https://www.youtube.com/channel/"

	// timestampLayout matches the archive's fixed wall-time format after
	// the trailing zone token is stripped.
	timestampLayout = "Jan 2, 2006, 3:04:05 PM"
)

// Scan discovers archive files under path and streams their watch events
// through the visitor. Cancellation is observed between files.
func Scan(ctx context.Context, path string, opts Options, v Visitor) error {
	files, err := Discover(path)
	if err != nil {
		return err
	}

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if v.File != nil {
			v.File(i, len(files), file)
		}
		if err := scanFile(file, opts, v.Event); err != nil {
			return fmt.Errorf("archive %s: %w", file, err)
		}
	}
	return nil
}

// scanFile prunes (if needed) and parses one archive file.
func scanFile(path string, opts Options, emit func(Event) error) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	content := string(raw)
	if !IsPruned(content) {
		content = Prune(content)
		if opts.PruneInPlace {
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				logging.Warn().Err(err).Str("path", path).Msg("Failed to write pruned archive back")
			} else {
				logging.Debug().Str("path", path).Msg("Pruned archive written in place")
			}
		}
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	divs := recordDivs(doc)
	if len(divs) == 0 {
		return ErrCorruptArchive
	}

	for _, div := range divs {
		ev, err := parseRecord(div)
		if err != nil {
			return err
		}
		if emit != nil {
			if err := emit(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordDivs collects the record body cells, depth-first in document
// order. Caption cells were renamed during pruning and do not match.
func recordDivs(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "div" && nodeClass(n) == "content-cell" {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func nodeClass(n *html.Node) string {
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			return attr.Val
		}
	}
	return ""
}

// anchor is a resolved <a> element inside a record div.
type anchor struct {
	href string
	text string
}

// parseRecord lifts one Event out of a record div.
func parseRecord(div *html.Node) (Event, error) {
	text := strings.TrimSpace(collectText(div))

	switch {
	case strings.HasPrefix(text, removedPrefix):
		ts, err := parseTimestamp(text[len(removedPrefix):])
		if err != nil {
			return Event{}, err
		}
		return Event{VideoID: UnknownID, WatchedAt: ts}, nil

	case strings.HasPrefix(text, storyPrefix):
		// Story URLs yield no usable video id.
		ts, err := parseTimestamp(lastLine(text))
		if err != nil {
			return Event{}, err
		}
		return Event{VideoID: UnknownID, WatchedAt: ts}, nil
	}

	ts, err := parseTimestamp(lastLine(text))
	if err != nil {
		return Event{}, err
	}

	ev := Event{VideoID: UnknownID, WatchedAt: ts}
	for _, a := range collectAnchors(div) {
		switch {
		case ev.VideoID == UnknownID && strings.Contains(a.href, watchHrefMarker):
			id := a.href[strings.Index(a.href, watchHrefMarker)+len(watchHrefMarker):]
			if cut := strings.Index(id, "&t="); cut >= 0 {
				id = id[:cut]
			}
			ev.VideoID = id
			// The anchor text is the title unless the archive rendered
			// the bare URL (video already retitled or removed).
			if a.text != a.href {
				ev.Title = a.text
			}
		case ev.ChannelID == "" && strings.HasPrefix(a.href, channelPrefix):
			ev.ChannelID = a.href[strings.LastIndex(a.href, "/")+1:]
			ev.ChannelTitle = a.text
		}
	}
	return ev, nil
}

// collectText concatenates the text nodes under n in document order.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			sb.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// collectAnchors resolves the <a> elements under n in document order.
func collectAnchors(n *html.Node) []anchor {
	var out []anchor
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			a := anchor{text: strings.TrimSpace(collectText(n))}
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					a.href = attr.Val
				}
			}
			out = append(out, a)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func lastLine(text string) string {
	if idx := strings.LastIndex(text, "\n"); idx >= 0 {
		return text[idx+1:]
	}
	return text
}

// parseTimestamp parses an archive timestamp string. The trailing zone
// token, split off at the last space, is discarded: the archive emits
// wall time in an undisclosed local zone.
func parseTimestamp(s string) (time.Time, error) {
	// Newer exports use narrow no-break spaces before the meridiem.
	s = strings.NewReplacer(" ", " ", " ", " ").Replace(s)
	s = strings.TrimSpace(s)

	if i := strings.LastIndex(s, " "); i >= 0 {
		if tail := s[i+1:]; tail != "AM" && tail != "PM" {
			s = s[:i]
		}
	}

	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
	}
	return t, nil
}
