// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package reconcile deduplicates watch-event timestamps across takeout
// archives.
//
// The same real watch event can appear in two archives with timestamps up
// to a day apart: takeouts are exported from systems using different local
// time offsets, and the archive format carries no zone. The reconciler
// lets legitimate repeat watches of the same video through while absorbing
// that cross-archive drift.
package reconcile

import (
	"sort"
	"time"
)

// DefaultMaxTimeDifference is the default zone-drift window: one day plus
// one hour, covering any pair of local offsets.
const DefaultMaxTimeDifference = 25 * time.Hour

// Reconciler applies the drift window to sorted timestamp lists.
// It is not safe for concurrent use; a single pipeline worker owns it.
type Reconciler struct {
	// MaxTimeDifference is the half-width of the search window around a
	// candidate timestamp.
	MaxTimeDifference time.Duration
}

// New returns a Reconciler with the given drift window. A non-positive
// window falls back to DefaultMaxTimeDifference.
func New(maxDiff time.Duration) *Reconciler {
	if maxDiff <= 0 {
		maxDiff = DefaultMaxTimeDifference
	}
	return &Reconciler{MaxTimeDifference: maxDiff}
}

// collapse zeroes the day and hour within a timestamp's month. Two
// timestamps that collapse to the same instant describe the same
// underlying watch event: whole-hour zone drift (and the day rollover it
// can cause) never changes minute or second.
func collapse(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, t.Minute(), t.Second(), 0, t.UTC().Location())
}

// DifferentTimestamps reports whether a and b describe different watch
// events. It returns false iff both collapse to the same instant.
func DifferentTimestamps(a, b time.Time) bool {
	return !collapse(a).Equal(collapse(b))
}

// window returns the index range [lo, hi) of list covered by the search
// window [candidate-MaxTimeDifference, candidate+MaxTimeDifference].
// list must be sorted ascending.
func (r *Reconciler) window(list []time.Time, candidate time.Time) (lo, hi int) {
	earliest := candidate.Add(-r.MaxTimeDifference)
	latest := candidate.Add(r.MaxTimeDifference)
	lo = sort.Search(len(list), func(i int) bool { return !list[i].Before(earliest) })
	hi = sort.Search(len(list), func(i int) bool { return list[i].After(latest) })
	return lo, hi
}

// UniqueInList reports whether candidate is a genuinely new event with
// respect to the sorted list: no element inside the drift window collapses
// to the same instant. When insert is true and the candidate is unique, it
// is inserted preserving sort order.
func (r *Reconciler) UniqueInList(candidate time.Time, list *[]time.Time, insert bool) bool {
	lo, hi := r.window(*list, candidate)
	for i := lo; i < hi; i++ {
		if !DifferentTimestamps(candidate, (*list)[i]) {
			return false
		}
	}
	if insert {
		at := sort.Search(len(*list), func(i int) bool { return (*list)[i].After(candidate) })
		*list = append(*list, time.Time{})
		copy((*list)[at+1:], (*list)[at:])
		(*list)[at] = candidate
	}
	return true
}

// RemoveClaimed evicts from filteree, for each timestamp in filter, the
// first element inside the drift window that collapses to the same
// instant. It returns the evicted timestamps. Used to pull
// previously-unknown timestamps out of the unknown bucket once a known
// video claims them.
func (r *Reconciler) RemoveClaimed(filter []time.Time, filteree *[]time.Time) []time.Time {
	var removed []time.Time
	for _, t := range filter {
		lo, hi := r.window(*filteree, t)
		for i := lo; i < hi; i++ {
			if !DifferentTimestamps(t, (*filteree)[i]) {
				removed = append(removed, (*filteree)[i])
				*filteree = append((*filteree)[:i], (*filteree)[i+1:]...)
				break
			}
		}
	}
	return removed
}
