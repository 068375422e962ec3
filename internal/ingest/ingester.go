// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/watchvault/internal/database"
	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/normalize"
	"github.com/tomtom215/watchvault/internal/reconcile"
	"github.com/tomtom215/watchvault/internal/takeout"
)

// activeFieldThreshold is the minimum number of retained metadata fields
// for a video to count as active. Sparser responses describe deleted
// videos; the API still answers for those but with a near-empty record.
const activeFieldThreshold = 7

// targetCommits spreads transaction commits across a run so external
// readers see monotonic growth.
const targetCommits = 1000

// record is the in-memory aggregate of all watch events for one video id
// across the scanned archives.
type record struct {
	title        string
	channelID    string
	channelTitle string
	times        []time.Time
}

// Ingester drives one takeout ingestion run.
type Ingester struct {
	store    *database.DB
	client   Enricher
	rec      *reconcile.Reconciler
	opts     takeout.Options
	attempts int
	emit     Emitter
}

// NewIngester wires an ingestion run over the given store and enrichment
// client. The reconciler is owned by this run for its duration. attempts
// bounds the per-video enrichment retry loop; 0 means the default.
func NewIngester(store *database.DB, client Enricher, rec *reconcile.Reconciler, opts takeout.Options, attempts int, emit Emitter) *Ingester {
	return &Ingester{store: store, client: client, rec: rec, opts: opts, attempts: attempts, emit: emit}
}

// Run scans the archives under path, reconciles and enriches every
// aggregated video, and persists the result. Cancellation via ctx commits
// the in-flight batch and emits a stop event rather than failing.
func (ing *Ingester) Run(ctx context.Context, path string) (IngestSummary, error) {
	var summary IngestSummary

	ing.emit.emit(KindStage, Stage{Stage: "takeout"})

	records, order, err := ing.scan(ctx, path)
	if err != nil {
		return summary, ing.fail(err)
	}
	logging.Info().Int("videos", len(order)).Str("path", path).Msg("Takeout scan complete")

	videos, err := ing.store.KnownVideoIDs(ctx)
	if err != nil {
		return summary, ing.fail(err)
	}
	channels, err := ing.store.KnownChannelIDs(ctx)
	if err != nil {
		return summary, ing.fail(err)
	}
	tagMap, err := ing.store.TagMap(ctx)
	if err != nil {
		return summary, ing.fail(err)
	}
	times, err := ing.store.TimestampsByVideo(ctx)
	if err != nil {
		return summary, ing.fail(err)
	}
	dead, err := ing.store.DeadVideoIDs(ctx)
	if err != nil {
		return summary, ing.fail(err)
	}
	unknownTimes := times[takeout.UnknownID]

	if err := ing.store.Begin(ctx); err != nil {
		return summary, ing.fail(err)
	}

	if unknown, ok := records[takeout.UnknownID]; ok {
		delete(records, takeout.UnknownID)
		order = without(order, takeout.UnknownID)
		if err := ing.ingestUnknown(ctx, unknown, videos, channels, times, &unknownTimes); err != nil {
			return summary, ing.fail(err)
		}
	}

	commitEvery := len(order) / targetCommits
	if commitEvery < 1 {
		commitEvery = 1
	}

	for i, id := range order {
		if ctx.Err() != nil {
			return summary, ing.stop(&summary)
		}
		if i > 0 && i%commitEvery == 0 {
			if err := ing.checkpoint(ctx, i, len(order), &summary); err != nil {
				return summary, ing.fail(err)
			}
		}

		rec := records[id]
		summary.RecordsProcessed++

		if videos[id] {
			if err := ing.ingestKnown(ctx, id, rec, channels, times, &unknownTimes, dead, &summary); err != nil {
				return summary, ing.fail(err)
			}
			continue
		}

		err := ing.ingestNew(ctx, id, rec, videos, channels, tagMap, times, &unknownTimes, dead, &summary)
		if errors.Is(err, context.Canceled) {
			return summary, ing.stop(&summary)
		}
		if err != nil {
			return summary, ing.fail(err)
		}
	}

	if err := ing.store.Commit(); err != nil {
		return summary, ing.fail(err)
	}

	inDB, err := ing.store.CountVideos(ctx)
	if err != nil {
		return summary, ing.fail(err)
	}
	summary.RecordsInDB = inDB

	ing.emit.emit(KindStats, summary)
	logging.Info().
		Int("processed", summary.RecordsProcessed).
		Int("inserted", summary.RecordsInserted).
		Int("updated", summary.RecordsUpdated).
		Int64("in_db", summary.RecordsInDB).
		Msg("Ingestion complete")
	return summary, nil
}

// scan folds every archive event into a per-video aggregate, preserving
// first-seen order.
func (ing *Ingester) scan(ctx context.Context, path string) (map[string]*record, []string, error) {
	records := make(map[string]*record)
	var order []string

	v := takeout.Visitor{
		File: func(index, total int, p string) {
			logging.Debug().Int("index", index).Int("total", total).Str("file", p).Msg("Scanning archive")
			ing.emit.emit(KindProgress, Progress{Percent: 100 * float64(index) / float64(total)})
		},
		Event: func(ev takeout.Event) error {
			r, ok := records[ev.VideoID]
			if !ok {
				r = &record{}
				records[ev.VideoID] = r
				order = append(order, ev.VideoID)
			}
			if r.title == "" {
				r.title = ev.Title
			}
			if r.channelID == "" {
				r.channelID = ev.ChannelID
				r.channelTitle = ev.ChannelTitle
			}
			r.times = append(r.times, ev.WatchedAt)
			return nil
		},
	}
	if err := takeout.Scan(ctx, path, ing.opts, v); err != nil {
		return nil, nil, err
	}
	return records, order, nil
}

// ingestUnknown folds this run's unidentifiable events into the sentinel
// unknown video. Candidates already claimed by any known video's
// persisted timestamps are discarded first.
func (ing *Ingester) ingestUnknown(ctx context.Context, unknown *record, videos, channels map[string]bool, times map[string][]time.Time, unknownTimes *[]time.Time) error {
	candidates := unknown.times
	for id, list := range times {
		if id == takeout.UnknownID {
			continue
		}
		ing.rec.RemoveClaimed(list, &candidates)
	}

	if !channels[takeout.UnknownID] {
		if _, err := ing.store.AddChannel(ctx, takeout.UnknownID, ""); err != nil {
			return err
		}
		channels[takeout.UnknownID] = true
	}
	if !videos[takeout.UnknownID] {
		values := map[string]any{
			"id":           takeout.UnknownID,
			"channel_id":   takeout.UnknownID,
			"title":        takeout.UnknownID,
			"status":       "inactive",
			"last_updated": now().UTC().Format(database.TimeLayout),
		}
		if _, err := ing.store.AddVideo(ctx, values); err != nil {
			return err
		}
		videos[takeout.UnknownID] = true
	}

	for _, c := range candidates {
		if !ing.rec.UniqueInList(c, unknownTimes, true) {
			continue
		}
		if _, err := ing.store.AddTime(ctx, takeout.UnknownID, c); err != nil {
			return err
		}
	}
	return nil
}

// ingestKnown handles a video that already has a row: reconcile its new
// timestamps, evict any it now claims from the unknown bucket, and
// resurrect identifying data if this archive names a dead video.
func (ing *Ingester) ingestKnown(ctx context.Context, id string, rec *record, channels map[string]bool, times map[string][]time.Time, unknownTimes *[]time.Time, dead map[string]bool, summary *IngestSummary) error {
	list := times[id]
	added := false
	for _, c := range rec.times {
		if !ing.rec.UniqueInList(c, &list, true) {
			continue
		}
		if _, err := ing.store.AddTime(ctx, id, c); err != nil {
			return err
		}
		added = true
	}
	times[id] = list

	for _, t := range ing.rec.RemoveClaimed(rec.times, unknownTimes) {
		if _, err := ing.store.DeleteTime(ctx, takeout.UnknownID, t); err != nil {
			return err
		}
	}

	if dead[id] && rec.title != "" && rec.title != takeout.UnknownID {
		values := map[string]any{
			"title":        rec.title,
			"status":       "inactive",
			"last_updated": now().UTC().Format(database.TimeLayout),
		}
		// The richer archive may also name the channel the bare entry
		// lacked. The channel row must exist before the video points at it.
		if rec.channelID != "" {
			if !channels[rec.channelID] {
				if _, err := ing.store.AddChannel(ctx, rec.channelID, rec.channelTitle); err != nil {
					return err
				}
				channels[rec.channelID] = true
			}
			values["channel_id"] = rec.channelID
		}
		if _, err := ing.store.UpdateVideo(ctx, id, values); err != nil {
			return err
		}
		if _, err := ing.store.DeleteDeadVideo(ctx, id); err != nil {
			return err
		}
		delete(dead, id)
		summary.RecordsUpdated++
		logging.Info().Str("video_id", id).Str("title", rec.title).Msg("Dead video identified by later archive")
		return nil
	}

	if added {
		summary.RecordsUpdated++
	}
	return nil
}

// ingestNew enriches and inserts a video not yet in the store.
func (ing *Ingester) ingestNew(ctx context.Context, id string, rec *record, videos, channels map[string]bool, tagMap map[string]int64, times map[string][]time.Time, unknownTimes *[]time.Time, dead map[string]bool, summary *IngestSummary) error {
	values := map[string]any{"id": id}
	if rec.title != "" {
		values["title"] = rec.title
	}
	if rec.channelID != "" {
		values["channel_id"] = rec.channelID
	}
	channelTitle := rec.channelTitle

	items, ok, err := enrichWithRetry(ctx, ing.client, id, ing.attempts)
	if err != nil {
		return err
	}
	status := "inactive"
	if ok && len(items) > 0 {
		fields := normalize.Item(items[0])
		if len(fields) >= activeFieldThreshold {
			status = "active"
		} else {
			status = "deleted"
		}
		for k, v := range fields {
			values[k] = v
		}
	}

	if title, _ := values["title"].(string); title == "" {
		values["title"] = takeout.UnknownID
		if _, err := ing.store.AddDeadVideo(ctx, id); err != nil {
			return err
		}
		dead[id] = true
	}
	if ct, found := values["channel_title"]; found {
		if s, isStr := ct.(string); isStr && s != "" {
			channelTitle = s
		}
		delete(values, "channel_title")
	}
	cid, _ := values["channel_id"].(string)
	if cid == "" {
		cid = takeout.UnknownID
		values["channel_id"] = cid
	}
	if !channels[cid] {
		if _, err := ing.store.AddChannel(ctx, cid, channelTitle); err != nil {
			logging.Error().Err(err).Str("channel_id", cid).Msg("Channel insert failed, skipping record")
			ing.emit.emit(KindErrors, ErrorReport{Message: fmt.Sprintf("channel %s: %v", cid, err)})
			return nil
		}
		channels[cid] = true
	}

	var tags []string
	if v, found := values["tags"]; found {
		tags, _ = v.([]string)
		delete(values, "tags")
	}
	var topics []string
	if v, found := values["relevant_topic_ids"]; found {
		topics, _ = v.([]string)
		delete(values, "relevant_topic_ids")
	}

	values["status"] = status
	values["last_updated"] = now().UTC().Format(database.TimeLayout)

	inserted, err := ing.store.AddVideo(ctx, values)
	if err != nil {
		return err
	}
	if inserted {
		videos[id] = true
		summary.RecordsInserted++
	}

	list := times[id]
	for _, c := range rec.times {
		if !ing.rec.UniqueInList(c, &list, true) {
			continue
		}
		if _, err := ing.store.AddTime(ctx, id, c); err != nil {
			return err
		}
	}
	times[id] = list
	for _, t := range ing.rec.RemoveClaimed(rec.times, unknownTimes) {
		if _, err := ing.store.DeleteTime(ctx, takeout.UnknownID, t); err != nil {
			return err
		}
	}

	if err := addTags(ctx, ing.store, id, tags, tagMap, nil); err != nil {
		return err
	}
	for _, topic := range topics {
		if _, err := ing.store.AddTopicToVideo(ctx, id, topic); err != nil {
			return err
		}
	}
	return nil
}

// checkpoint commits the open batch and emits a progress tick.
func (ing *Ingester) checkpoint(ctx context.Context, done, total int, summary *IngestSummary) error {
	if err := ing.store.Commit(); err != nil {
		return err
	}
	if err := ing.store.Begin(ctx); err != nil {
		return err
	}
	ing.emit.emit(KindProgress, Progress{
		Percent:          100 * float64(done) / float64(total),
		RecordsProcessed: summary.RecordsProcessed,
		RecordsUpdated:   summary.RecordsUpdated,
	})
	return nil
}

// stop handles cooperative cancellation: the in-flight batch is committed
// so completed work survives, then a stop event ends the stream.
func (ing *Ingester) stop(summary *IngestSummary) error {
	if err := ing.store.Commit(); err != nil {
		return ing.fail(err)
	}
	ing.emit.emit(KindStop, nil)
	logging.Info().Int("processed", summary.RecordsProcessed).Msg("Ingestion cancelled")
	return nil
}

// fail reports a fatal run error to the progress stream. The open batch
// is discarded: committed batches are the unit of durability, and a later
// run must not commit this one's partial writes.
func (ing *Ingester) fail(err error) error {
	if rbErr := ing.store.Rollback(); rbErr != nil {
		logging.Error().Err(rbErr).Msg("Rollback after failed ingestion")
	}
	logging.Error().Err(err).Msg("Ingestion failed")
	ing.emit.emit(KindErrors, ErrorReport{Message: err.Error()})
	return err
}

// addTags resolves each tag to its dictionary id, creating missing tags,
// and joins them to the video. Pairs present in skip are left alone.
func addTags(ctx context.Context, store *database.DB, videoID string, tags []string, tagMap map[string]int64, skip map[int64]bool) error {
	for _, tag := range tags {
		tagID, known := tagMap[tag]
		if !known {
			newID, created, err := store.AddTag(ctx, tag)
			if err != nil {
				return err
			}
			if !created {
				continue
			}
			tagID = newID
			tagMap[tag] = newID
		}
		if skip != nil && skip[tagID] {
			continue
		}
		if _, err := store.AddTagToVideo(ctx, videoID, tagID); err != nil {
			return err
		}
		if skip != nil {
			skip[tagID] = true
		}
	}
	return nil
}

// without compacts order in place, dropping the given id.
func without(order []string, id string) []string {
	n := 0
	for _, v := range order {
		if v == id {
			continue
		}
		order[n] = v
		n++
	}
	return order[:n]
}
