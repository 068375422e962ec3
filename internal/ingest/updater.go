// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/watchvault/internal/database"
	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/normalize"
)

// Updater re-enriches stored videos older than a staleness cutoff,
// refreshing lifecycle state and mutable metadata in place.
type Updater struct {
	store    *database.DB
	client   Enricher
	cutoff   time.Duration
	attempts int
	emit     Emitter
}

// NewUpdater wires an update pass. Rows whose last enrichment is younger
// than cutoff are skipped without an API call. attempts bounds the
// per-video enrichment retry loop; 0 means the default.
func NewUpdater(store *database.DB, client Enricher, cutoff time.Duration, attempts int, emit Emitter) *Updater {
	return &Updater{store: store, client: client, cutoff: cutoff, attempts: attempts, emit: emit}
}

// Run walks every non-terminal identified video, stalest first, and
// applies a fresh enrichment. Tags and topics are only ever added; rows
// keep dictionary links even when the API stops reporting them.
func (u *Updater) Run(ctx context.Context) (UpdateSummary, error) {
	var summary UpdateSummary

	u.emit.emit(KindStage, Stage{Stage: "update"})

	candidates, err := u.store.StaleCandidates(ctx)
	if err != nil {
		return summary, u.fail(err)
	}
	tagMap, err := u.store.TagMap(ctx)
	if err != nil {
		return summary, u.fail(err)
	}
	tagJoins, err := u.store.TagIDsByVideo(ctx)
	if err != nil {
		return summary, u.fail(err)
	}
	topicJoins, err := u.store.TopicsByVideo(ctx)
	if err != nil {
		return summary, u.fail(err)
	}

	if err := u.store.Begin(ctx); err != nil {
		return summary, u.fail(err)
	}

	start := now().UTC()
	commitEvery := len(candidates) / targetCommits
	if commitEvery < 1 {
		commitEvery = 1
	}

	for i, c := range candidates {
		if ctx.Err() != nil {
			return summary, u.stop(&summary)
		}
		if i > 0 && i%commitEvery == 0 {
			if err := u.checkpoint(ctx, i, len(candidates), &summary); err != nil {
				return summary, u.fail(err)
			}
		}
		if start.Sub(c.LastUpdated) < u.cutoff {
			continue
		}
		summary.RecordsProcessed++

		err := u.updateOne(ctx, c, tagMap, tagJoins, topicJoins, &summary)
		if errors.Is(err, context.Canceled) {
			return summary, u.stop(&summary)
		}
		if err != nil {
			return summary, u.fail(err)
		}
	}

	if err := u.store.Commit(); err != nil {
		return summary, u.fail(err)
	}
	if err := u.store.Compact(ctx); err != nil {
		return summary, u.fail(err)
	}

	u.emit.emit(KindStats, summary)
	logging.Info().
		Int("processed", summary.RecordsProcessed).
		Int("updated", summary.RecordsUpdated).
		Int("newly_active", summary.NewlyActive).
		Int("newly_inactive", summary.NewlyInactive).
		Int("deleted", summary.DeletedFromYouTube).
		Msg("Update pass complete")
	return summary, nil
}

// updateOne re-enriches a single row and applies the resulting state.
func (u *Updater) updateOne(ctx context.Context, c database.StaleCandidate, tagMap map[string]int64, tagJoins map[string]map[int64]bool, topicJoins map[string]map[string]bool, summary *UpdateSummary) error {
	items, ok, err := enrichWithRetry(ctx, u.client, c.ID, u.attempts)
	if err != nil {
		return err
	}

	values := map[string]any{}
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

	switch {
	case status == "deleted":
		summary.DeletedFromYouTube++
	case c.Status == "inactive" && status == "active":
		summary.NewlyActive++
	case c.Status == "active" && status == "inactive":
		summary.NewlyInactive++
	}

	if err := u.syncChannel(ctx, values); err != nil {
		return err
	}

	var tags []string
	if v, found := values["tags"]; found {
		tags, _ = v.([]string)
		delete(values, "tags")
	}
	skip := tagJoins[c.ID]
	if skip == nil {
		skip = make(map[int64]bool)
		tagJoins[c.ID] = skip
	}
	if err := addTags(ctx, u.store, c.ID, tags, tagMap, skip); err != nil {
		return err
	}

	if v, found := values["relevant_topic_ids"]; found {
		topics, _ := v.([]string)
		delete(values, "relevant_topic_ids")
		seen := topicJoins[c.ID]
		if seen == nil {
			seen = make(map[string]bool)
			topicJoins[c.ID] = seen
		}
		for _, topic := range topics {
			if seen[topic] {
				continue
			}
			if _, err := u.store.AddTopicToVideo(ctx, c.ID, topic); err != nil {
				return err
			}
			seen[topic] = true
		}
	}

	// published_at is immutable after insert.
	delete(values, "published_at")
	delete(values, "id")

	values["status"] = status
	values["last_updated"] = now().UTC().Format(database.TimeLayout)
	if _, err := u.store.UpdateVideo(ctx, c.ID, values); err != nil {
		return err
	}
	summary.RecordsUpdated++
	return nil
}

// syncChannel reconciles the enriched channel reference with the channels
// table: a renamed channel gets its title updated, a previously unseen id
// gets a row. Covers videos that moved between channels.
func (u *Updater) syncChannel(ctx context.Context, values map[string]any) error {
	title, _ := values["channel_title"].(string)
	delete(values, "channel_title")
	cid, _ := values["channel_id"].(string)
	if cid == "" {
		return nil
	}

	stored, exists, err := u.store.ChannelTitle(ctx, cid)
	if err != nil {
		return err
	}
	if !exists {
		// The row must exist, titled or not, before the video row points
		// at it: a missing parent FK-fails the video update silently.
		_, err := u.store.AddChannel(ctx, cid, title)
		return err
	}
	if title != "" && stored != title {
		if _, err := u.store.UpdateChannelTitle(ctx, cid, title); err != nil {
			return err
		}
		logging.Debug().Str("channel_id", cid).Str("title", title).Msg("Channel renamed")
	}
	return nil
}

func (u *Updater) checkpoint(ctx context.Context, done, total int, summary *UpdateSummary) error {
	if err := u.store.Commit(); err != nil {
		return err
	}
	if err := u.store.Begin(ctx); err != nil {
		return err
	}
	u.emit.emit(KindProgress, Progress{
		Percent:          100 * float64(done) / float64(total),
		RecordsProcessed: summary.RecordsProcessed,
		RecordsUpdated:   summary.RecordsUpdated,
	})
	return nil
}

func (u *Updater) stop(summary *UpdateSummary) error {
	if err := u.store.Commit(); err != nil {
		return u.fail(err)
	}
	u.emit.emit(KindStop, nil)
	logging.Info().Int("processed", summary.RecordsProcessed).Msg("Update pass cancelled")
	return nil
}

func (u *Updater) fail(err error) error {
	if rbErr := u.store.Rollback(); rbErr != nil {
		logging.Error().Err(rbErr).Msg("Rollback after failed update pass")
	}
	logging.Error().Err(err).Msg("Update pass failed")
	u.emit.emit(KindErrors, ErrorReport{Message: err.Error()})
	return err
}
