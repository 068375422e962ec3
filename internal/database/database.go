// Watchvault - YouTube Takeout Watch History Archive and Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchvault

// Package database is the SQLite persistence layer for the watch-history
// store.
//
// The store owns schema creation, reference-dictionary seeding and query
// execution. Coordinators drive it in transaction-sized batches: Begin
// opens a batch, every write lands on the open transaction, Commit closes
// it. The connection is owned by a single pipeline worker for the
// duration of a run; no method is safe for concurrent use.
//
// Integrity failures (duplicate rows, dead foreign keys) are non-fatal:
// the affected write reports ok=false and the batch continues. Any other
// database error propagates.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/tomtom215/watchvault/internal/logging"
)

// TimeLayout is the canonical wall-time format persisted in timestamp
// columns. The source data carries no zone, so naive wall time is stored.
const TimeLayout = "2006-01-02 15:04:05"

// DB wraps the SQLite connection and provides data access methods.
type DB struct {
	conn *sql.DB

	// tx is the open batch transaction, nil between batches.
	tx *sql.Tx
}

// New opens (creating if necessary) the SQLite database at path and
// enforces foreign keys on the connection. ":memory:" is accepted for
// tests.
func New(path string) (*DB, error) {
	if path != ":memory:" {
		dbDir := filepath.Dir(path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The worker owns the store; a single underlying connection keeps
	// the open batch transaction and reads on the same session.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close commits nothing: an open batch is rolled back, matching the
// crash-consistency contract (committed batches are the unit of
// durability).
func (db *DB) Close() error {
	if db.tx != nil {
		if err := db.tx.Rollback(); err != nil {
			logging.Warn().Err(err).Msg("Failed to roll back open batch on close")
		}
		db.tx = nil
	}
	return db.conn.Close()
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Begin opens a batch transaction. Calling Begin with a batch already
// open is a no-op.
func (db *DB) Begin(ctx context.Context) error {
	if db.tx != nil {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	db.tx = tx
	return nil
}

// Commit closes the open batch transaction. A commit with no open batch
// is a no-op.
func (db *DB) Commit() error {
	if db.tx == nil {
		return nil
	}
	err := db.tx.Commit()
	db.tx = nil
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Rollback discards the open batch transaction. A rollback with no open
// batch is a no-op. An aborted run must roll back so the next Begin does
// not inherit its partial writes.
func (db *DB) Rollback() error {
	if db.tx == nil {
		return nil
	}
	err := db.tx.Rollback()
	db.tx = nil
	if err != nil {
		return fmt.Errorf("rollback batch: %w", err)
	}
	return nil
}

// Compact reclaims free pages. Run after an update pass; requires no open
// batch.
func (db *DB) Compact(ctx context.Context) error {
	if db.tx != nil {
		return errors.New("compact requires no open batch")
	}
	if _, err := db.conn.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// executor routes statements through the open batch when one exists.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *DB) executor() executor {
	if db.tx != nil {
		return db.tx
	}
	return db.conn
}

// Execute runs a single write statement. Integrity failures return
// (false, nil): the row is already present or references a missing
// parent, and the caller treats that as "skip". Other errors propagate.
// logIntegrityFail silences the debug log line for call sites where
// duplicates are the common case.
func (db *DB) Execute(ctx context.Context, query string, args []any, logIntegrityFail bool) (bool, error) {
	if _, err := db.executor().ExecContext(ctx, query, args...); err != nil {
		if isConstraintErr(err) {
			if logIntegrityFail {
				logging.Debug().Err(err).Str("query", query).Msg("Integrity failure, treated as already present")
			}
			return false, nil
		}
		return false, fmt.Errorf("execute %q: %w", query, err)
	}
	return true, nil
}

// isConstraintErr reports whether err is a SQLite constraint violation
// (unique, primary key or foreign key).
func isConstraintErr(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}

func closeQuietly(c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		logging.Debug().Err(err).Msg("Error closing database resource")
	}
}
