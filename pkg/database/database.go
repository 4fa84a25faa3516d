// MeasureBoard Core
// Copyright (c) 2026 The MeasureBoard Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of MeasureBoard Core.
//
// MeasureBoard Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// MeasureBoard Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with MeasureBoard Core.  If not, see <http://www.gnu.org/licenses/>.

// Package database keeps a local history of board outputs in SQLite.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	// sqlite3 driver registration
	_ "github.com/mattn/go-sqlite3"
)

const (
	HistoryFile      = "history.db"
	sqliteConnParams = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
)

var ErrNullSQL = errors.New("history database is not connected")

// Entry is one recorded output.
type Entry struct {
	Time    time.Time `json:"time"`
	Session string    `json:"session"`
	Device  string    `json:"device"`
	Kind    string    `json:"kind"`
	Symbol  string    `json:"symbol,omitempty"`
	DBID    int64     `json:"id"`
	Value   int       `json:"value"`
}

// HistoryDB stores outputs across runs.
type HistoryDB struct {
	sql *sql.DB
}

// Open opens or creates the database at path and applies migrations.
func Open(ctx context.Context, path string) (*HistoryDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create directory for database: %w", err)
	}
	sqlInstance, err := sql.Open("sqlite3", path+sqliteConnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlInstance.PingContext(ctx); err != nil {
		_ = sqlInstance.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := MigrateUp(sqlInstance); err != nil {
		_ = sqlInstance.Close()
		return nil, fmt.Errorf("failed to run history database migrations: %w", err)
	}
	log.Debug().Str("path", path).Msg("history database opened")
	return &HistoryDB{sql: sqlInstance}, nil
}

// FromSQL wraps an existing connection without running migrations.
func FromSQL(db *sql.DB) *HistoryDB {
	return &HistoryDB{sql: db}
}

func (db *HistoryDB) Add(ctx context.Context, entry Entry) (int64, error) {
	if db.sql == nil {
		return 0, ErrNullSQL
	}
	return sqlAddEntry(ctx, db.sql, entry)
}

// Recent returns up to limit entries, newest first.
func (db *HistoryDB) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}
	return sqlRecentEntries(ctx, db.sql, limit)
}

// Cleanup deletes entries older than retentionDays.
func (db *HistoryDB) Cleanup(ctx context.Context, now time.Time, retentionDays int) (int64, error) {
	if db.sql == nil {
		return 0, ErrNullSQL
	}
	return sqlCleanup(ctx, db.sql, now.AddDate(0, 0, -retentionDays))
}

func (db *HistoryDB) Close() error {
	if db.sql == nil {
		return nil
	}
	if err := db.sql.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
