// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package main is the entry point for the Watchvault server.
//
// Watchvault ingests Google Takeout watch-history archives, reconciles
// watch timestamps across exports taken in different time zones, enriches
// every distinct video via the YouTube Data API, and persists the result
// in a normalized SQLite database.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, then config.yaml, then WATCHVAULT_* env vars (Koanf v2)
//  2. Logging: zerolog, optionally teeing into a rotating file sink
//  3. Database: SQLite schema creation and topic dictionary seeding
//  4. Enrichment client: YouTube Data API v3, when an API key is configured
//  5. Worker: single-flight background runner for ingestion and update passes
//  6. HTTP server: run control, status and the progress event stream
//
// # Configuration
//
// Environment variables use a WATCHVAULT_ prefix with the first
// underscore separating the section, e.g.:
//
//	export WATCHVAULT_DATABASE_PATH=yt.sqlite
//	export WATCHVAULT_ENRICH_API_KEY=your-api-key
//	export WATCHVAULT_SERVER_PORT=5000
//	./watchvault
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the in-flight run is
// cancelled (its current batch commits first), the HTTP server drains,
// and the database closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/watchvault/internal/api"
	"github.com/tomtom215/watchvault/internal/config"
	"github.com/tomtom215/watchvault/internal/database"
	"github.com/tomtom215/watchvault/internal/ingest"
	"github.com/tomtom215/watchvault/internal/logging"
	"github.com/tomtom215/watchvault/internal/worker"
	"github.com/tomtom215/watchvault/internal/youtube"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config is not available yet, use the default logger.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		File:           cfg.Logging.File,
		FileMaxSizeMB:  cfg.Logging.FileMaxSizeMB,
		FileMaxBackups: cfg.Logging.FileMaxBackups,
	})
	logging.Info().Str("db_path", cfg.Database.Path).Msg("Configuration loaded")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to create schema")
	}
	if err := db.SeedTopics(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to seed topics")
	}
	logging.Info().Msg("Database initialized")

	var client ingest.Enricher
	if cfg.Enrich.APIKey != "" {
		yt := youtube.New(youtube.Config{
			BaseURL:           cfg.Enrich.BaseURL,
			APIKey:            cfg.Enrich.APIKey,
			Parts:             cfg.Enrich.Parts,
			RequestsPerSecond: cfg.Enrich.RequestsPerSecond,
			Timeout:           cfg.Enrich.Timeout,
		})
		client = yt

		// Best effort: a stale catalog is better than no startup.
		if err := db.RefreshCategories(ctx, yt); err != nil {
			logging.Warn().Err(err).Msg("Category catalog refresh failed")
		} else {
			logging.Info().Msg("Category catalog refreshed")
		}
	} else {
		logging.Warn().Msg("No API key configured, enrichment disabled")
	}

	runner := worker.New(256)
	handler := api.NewHandler(db, client, runner, cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.Router(handler),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: 0, // the event stream writes for as long as a run lasts
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("HTTP server error")
		}
		cancel()
	}

	// Cancel the in-flight run so its current batch commits, then drain
	// HTTP connections.
	if runner.Cancel() {
		logging.Info().Msg("Cancelled in-flight run for shutdown")
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logging.Info().Msg("Application stopped gracefully")
}
