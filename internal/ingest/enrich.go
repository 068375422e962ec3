// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package ingest

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/youtube"
)

// Enricher is the metadata lookup capability the pipeline consumes.
type Enricher interface {
	VideoInfo(ctx context.Context, videoID string) ([]map[string]any, error)
}

// defaultRetryAttempts bounds the enrichment retry loop per video. With
// the 0.01*k^k backoff the cumulative worst-case sleep is about 31
// seconds.
const defaultRetryAttempts = 5

// retryBackoff returns the sleep before retrying after attempt k.
func retryBackoff(attempt int) time.Duration {
	seconds := 0.01 * math.Pow(float64(attempt), float64(attempt))
	return time.Duration(seconds * float64(time.Second))
}

// enrichWithRetry fetches metadata for one video with bounded retries.
// ok=false means every attempt failed transiently; the caller treats the
// video as inactive and moves on. The returned error is fatal for the
// run: a rejected API key or a cancelled context.
func enrichWithRetry(ctx context.Context, client Enricher, videoID string, attempts int) (items []map[string]any, ok bool, err error) {
	if client == nil {
		// Enrichment disabled: no metadata, same path as an empty response.
		return nil, true, nil
	}
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		items, err := client.VideoInfo(ctx, videoID)
		if err == nil {
			return items, true, nil
		}
		if errors.Is(err, youtube.ErrAPIKey) || errors.Is(err, context.Canceled) {
			return nil, false, err
		}

		logging.Warn().Err(err).Str("video_id", videoID).Int("attempt", attempt).Msg("Enrichment call failed")
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(retryBackoff(attempt)):
		}
	}
	return nil, false, nil
}
