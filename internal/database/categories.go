// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomtom215/watchvault/internal/logging"
)

// CategoryLister is the slice of the enrichment client the category
// refresh consumes.
type CategoryLister interface {
	Categories(ctx context.Context) ([]map[string]any, error)
}

// RefreshCategories fully replaces the category dictionary from the
// remote catalog: delete-then-insert within a single transaction, so
// readers never observe a partial catalog. Idempotent for an unchanged
// catalog (same row count, same etag per id).
func (db *DB) RefreshCategories(ctx context.Context, client CategoryLister) error {
	if db.tx != nil {
		return fmt.Errorf("refresh categories: batch transaction open")
	}

	items, err := client.Categories(ctx)
	if err != nil {
		return fmt.Errorf("fetch categories: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("refresh categories: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logging.Debug().Err(err).Msg("Category refresh rollback")
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM categories"); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}

	insert := buildInsert("categories", []string{"id", "channel_id", "title", "assignable", "etag"})
	for _, item := range items {
		id, _ := item["id"].(string)
		etag, _ := item["etag"].(string)
		var channelID, title string
		var assignable bool
		if snippet, ok := item["snippet"].(map[string]any); ok {
			channelID, _ = snippet["channelId"].(string)
			title, _ = snippet["title"].(string)
			assignable, _ = snippet["assignable"].(bool)
		}
		if id == "" {
			logging.Warn().Msg("Skipping category item without id")
			continue
		}
		if _, err := tx.ExecContext(ctx, insert, id, channelID, title, assignable, etag); err != nil {
			return fmt.Errorf("insert category %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit categories: %w", err)
	}
	logging.Info().Int("categories", len(items)).Msg("Category catalog refreshed")
	return nil
}
