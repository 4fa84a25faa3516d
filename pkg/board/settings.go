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

package board

import (
	"github.com/MeasureBoard/measureboard-core/pkg/protocol"
)

// Layout maps stylus positions in a keyboard zone to symbols. Cells are
// CellWidth wide and start at Zero.
type Layout struct {
	Symbols   []string
	Zero      int
	CellWidth int
}

// Lookup returns the symbol under pos. Positions before the first cell or
// past the last one have no symbol.
func (l Layout) Lookup(pos int) (string, bool) {
	if l.CellWidth <= 0 {
		return "", false
	}
	d := pos - l.Zero
	if d < 0 {
		return "", false
	}
	i := d / l.CellWidth
	if i >= len(l.Symbols) {
		return "", false
	}
	return l.Symbols[i], true
}

// ZoneBands are the lower bounds of the position bands a swipe gesture
// selects with. Positions below BottomMin select the top zone.
type ZoneBands struct {
	MeasuringMin int
	BottomMin    int
}

// Select returns the zone for a zone-select position.
func (b ZoneBands) Select(pos int) Zone {
	switch {
	case pos >= b.MeasuringMin:
		return ZoneMeasuring
	case pos >= b.BottomMin:
		return ZoneBottom
	default:
		return ZoneTop
	}
}

// Settings are the data tables the state machine runs on. Board variants
// differ only in these values.
type Settings struct {
	Layouts        map[Zone]Layout
	Bands          ZoneBands
	SwipeThreshold int
	PenOffset      int
	FingerOffset   int
	BacklightStep  int
	BacklightMin   int
	BacklightMax   int
}

// Offset returns the fixed offset of the given stylus.
func (s Settings) Offset(st Stylus) int {
	if st == StylusFinger {
		return s.FingerOffset
	}
	return s.PenOffset
}

// DefaultLayouts are the stock control box layouts.
func DefaultLayouts() map[Zone]Layout {
	return map[Zone]Layout{
		ZoneTop: {
			Zero:      20,
			CellWidth: 36,
			Symbols: []string{
				"q", "w", "e", "r", "t", "y", "u", "i", "o", "p",
				"a", "s", "d", "f", "g", "h", "j", "k", "l",
				"z", "x", "c", "v", "b", "n", "m", "space",
			},
		},
		ZoneBottom: {
			Zero:      20,
			CellWidth: 60,
			Symbols: []string{
				"1", "2", "3", "4", "5", "6", "7", "8", "9", "0",
				"space", "-", ".",
			},
		},
	}
}

// DefaultSettings returns the stock board settings.
func DefaultSettings() Settings {
	return Settings{
		Layouts:        DefaultLayouts(),
		Bands:          ZoneBands{MeasuringMin: 600, BottomMin: 300},
		SwipeThreshold: 5,
		PenOffset:      6,
		FingerOffset:   10,
		BacklightStep:  25,
		BacklightMin:   protocol.BacklightLevelMin,
		BacklightMax:   protocol.BacklightLevelMax,
	}
}

// SyncTargets are the settings pushed to the board by a sync and verified
// afterwards.
type SyncTargets struct {
	InterfaceMode      int
	SensorMode         protocol.SensorMode
	BacklightLevel     int
	SettlingDelay      int
	MaxDeviation       int
	ReadingCount       int
	StylusMessage      bool
	RequireCalibration bool
}

// DefaultSyncTargets returns the stock sync targets.
func DefaultSyncTargets() SyncTargets {
	return SyncTargets{
		InterfaceMode:  protocol.InterfaceModeASCII,
		SensorMode:     protocol.ModeLength,
		BacklightLevel: 50,
		StylusMessage:  true,
		SettlingDelay:  50,
		MaxDeviation:   3,
		ReadingCount:   5,
	}
}
