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
	"strconv"

	"github.com/MeasureBoard/measureboard-core/pkg/protocol"
)

// Zone selects how stylus positions are turned into output.
type Zone int

const (
	ZoneMeasuring Zone = iota
	ZoneTop
	ZoneBottom
)

func (z Zone) String() string {
	switch z {
	case ZoneMeasuring:
		return "measuring"
	case ZoneTop:
		return "top"
	case ZoneBottom:
		return "bottom"
	default:
		return "unknown(" + strconv.Itoa(int(z)) + ")"
	}
}

// ParseZone returns the zone with the given name.
func ParseZone(name string) (Zone, bool) {
	switch name {
	case "measuring":
		return ZoneMeasuring, true
	case "top":
		return ZoneTop, true
	case "bottom":
		return ZoneBottom, true
	default:
		return 0, false
	}
}

// Stylus is the active pointing device. Each has its own fixed offset.
type Stylus int

const (
	StylusPen Stylus = iota
	StylusFinger
)

func (s Stylus) String() string {
	if s == StylusFinger {
		return "finger"
	}
	return "pen"
}

// CalibrationPhase tracks a single-point calibration run.
type CalibrationPhase int

const (
	CalibrationIdle CalibrationPhase = iota
	CalibrationAwaitingReady
	CalibrationAwaitingTouch
)

func (p CalibrationPhase) String() string {
	switch p {
	case CalibrationAwaitingReady:
		return "awaiting-ready"
	case CalibrationAwaitingTouch:
		return "awaiting-touch"
	default:
		return "idle"
	}
}

// Calibration is the board's stored two-point calibration. It is always
// replaced as a whole value.
type Calibration struct {
	Points [2]int
	Valid  bool
}

// DeviceState is a snapshot of everything known about the board.
type DeviceState struct {
	Calibration          Calibration
	InterfaceMode        int
	SensorMode           protocol.SensorMode
	SettlingDelay        int
	MaxDeviation         int
	ReadingCount         int
	Battery              int
	BacklightLevel       int
	BacklightSensitivity int
	Zone                 Zone
	Stylus               Stylus
	CalibrationPhase     CalibrationPhase
	CalibrationPoint     int
	StylusMessage        bool
	BacklightAuto        bool
	SwipeArmed           bool
	Muted                bool
	RebootSeen           bool
}
