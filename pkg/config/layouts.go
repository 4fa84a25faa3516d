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

package config

import (
	"fmt"
	"io"
	"slices"

	"github.com/MeasureBoard/measureboard-core/pkg/board"
	"github.com/gocarina/gocsv"
)

// LayoutRow is one cell of a zone layout table.
type LayoutRow struct {
	Zone   string `csv:"zone"`
	Index  int    `csv:"index"`
	Symbol string `csv:"symbol"`
}

// ReadLayouts parses a zone,index,symbol table into per-zone symbol lists.
// Indexes within a zone must run from 0 without gaps.
func ReadLayouts(r io.Reader) (map[board.Zone][]string, error) {
	rows := make([]LayoutRow, 0)
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal layouts CSV: %w", err)
	}

	cells := make(map[board.Zone]map[int]string)
	for i, row := range rows {
		zone, ok := board.ParseZone(row.Zone)
		if !ok || zone == board.ZoneMeasuring {
			return nil, fmt.Errorf("layouts row %d: unknown keyboard zone %q", i+1, row.Zone)
		}
		if row.Index < 0 {
			return nil, fmt.Errorf("layouts row %d: negative index %d", i+1, row.Index)
		}
		if row.Symbol == "" {
			return nil, fmt.Errorf("layouts row %d: empty symbol", i+1)
		}
		if cells[zone] == nil {
			cells[zone] = make(map[int]string)
		}
		if _, dup := cells[zone][row.Index]; dup {
			return nil, fmt.Errorf("layouts row %d: duplicate index %d in zone %s", i+1, row.Index, zone)
		}
		cells[zone][row.Index] = row.Symbol
	}

	layouts := make(map[board.Zone][]string, len(cells))
	for zone, byIndex := range cells {
		symbols := make([]string, len(byIndex))
		for idx, sym := range byIndex {
			if idx >= len(symbols) {
				return nil, fmt.Errorf("zone %s: index %d leaves a gap", zone, idx)
			}
			symbols[idx] = sym
		}
		layouts[zone] = symbols
	}
	return layouts, nil
}

// WriteLayouts writes layouts in the format ReadLayouts accepts, top zone
// first.
func WriteLayouts(w io.Writer, layouts map[board.Zone]board.Layout) error {
	zones := make([]board.Zone, 0, len(layouts))
	for zone := range layouts {
		zones = append(zones, zone)
	}
	slices.Sort(zones)

	rows := make([]LayoutRow, 0)
	for _, zone := range zones {
		for i, sym := range layouts[zone].Symbols {
			rows = append(rows, LayoutRow{Zone: zone.String(), Index: i, Symbol: sym})
		}
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to marshal layouts CSV: %w", err)
	}
	return nil
}
