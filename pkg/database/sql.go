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

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

func closeStmt(stmt *sql.Stmt) {
	if err := stmt.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close sql statement")
	}
}

func sqlAddEntry(ctx context.Context, db *sql.DB, entry Entry) (int64, error) {
	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO Outputs(Time, Session, Device, Kind, Value, Symbol)
		VALUES (?, ?, ?, ?, ?, ?);
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare output insert statement: %w", err)
	}
	defer closeStmt(stmt)

	result, err := stmt.ExecContext(ctx,
		entry.Time.UnixMilli(),
		entry.Session,
		entry.Device,
		entry.Kind,
		entry.Value,
		entry.Symbol,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert output: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted output id: %w", err)
	}
	return id, nil
}

func sqlRecentEntries(ctx context.Context, db *sql.DB, limit int) ([]Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DBID, Time, Session, Device, Kind, Value, Symbol
		FROM Outputs
		ORDER BY Time DESC, DBID DESC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outputs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close rows")
		}
	}()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.DBID, &ms, &e.Session, &e.Device, &e.Kind, &e.Value, &e.Symbol); err != nil {
			return nil, fmt.Errorf("failed to scan output row: %w", err)
		}
		e.Time = time.UnixMilli(ms)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate output rows: %w", err)
	}
	return entries, nil
}

func sqlCleanup(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	stmt, err := db.PrepareContext(ctx, `DELETE FROM Outputs WHERE Time < ?;`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare output cleanup statement: %w", err)
	}
	defer closeStmt(stmt)

	result, err := stmt.ExecContext(ctx, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up outputs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get cleaned up row count: %w", err)
	}
	return n, nil
}
