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

// Package protocol implements the board's ASCII wire protocol: frame
// splitting, frame classification and command/response correlation.
//
// Frames sent by the board are short ASCII strings, usually of the form
// "%<tag><payload>#\r". Sensor positions, swipe magnitudes and control box
// keys arrive unsolicited at any time. Everything else is a response to a
// command the host sent earlier; responses carry no command ID so they are
// paired with commands strictly in order.
package protocol

import (
	"fmt"
	"strconv"
)

// Frame delimiters, in priority order.
const (
	DelimLF          = "\n"
	DelimCR          = "\r"
	DelimTerminator  = "#"
	NoticeBoardReset = "*** BOARD RESET ***"
	NoticeWatchdog   = "*** WATCHDOG RESET ***"
)

// Delimiters lists every recognised frame delimiter in priority order.
var Delimiters = []string{
	DelimLF,
	DelimCR,
	DelimTerminator,
	NoticeBoardReset,
	NoticeWatchdog,
}

// CommandTerminator is appended to every command written to the board.
const CommandTerminator = "\r"

// Sensor event tags.
const (
	TagPosition = "%P"
	TagSwipe    = "%S"
	TagKey      = "%K"
)

// SensorMode is the board's stylus interpretation mode.
type SensorMode int

const (
	ModeLength SensorMode = iota
	ModeAlpha
	ModeShortcut
	ModeNumeric
)

var sensorModeNames = [...]string{"length", "alpha", "shortcut", "numeric"}

func (m SensorMode) String() string {
	if m < 0 || int(m) >= len(sensorModeNames) {
		return "unknown(" + strconv.Itoa(int(m)) + ")"
	}
	return sensorModeNames[m]
}

// Next returns the mode following m in the board's cycle order.
func (m SensorMode) Next() SensorMode {
	return (m + 1) % SensorMode(len(sensorModeNames))
}

// ParseSensorMode returns the mode with the given name.
func ParseSensorMode(name string) (SensorMode, error) {
	for i, n := range sensorModeNames {
		if n == name {
			return SensorMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sensor mode: %q", name)
}

// InterfaceModeASCII is the interface mode that makes the board stream the
// text protocol handled here.
const InterfaceModeASCII = 3

// Calibration point IDs.
const (
	CalibrationPoint1 = 1
	CalibrationPoint2 = 2
)

// Setting limits enforced before a command is queued.
const (
	SettlingDelayMin        = 10
	SettlingDelayMax        = 500
	MaxDeviationMin         = 1
	MaxDeviationMax         = 20
	ReadingCountMin         = 1
	ReadingCountMax         = 10
	BacklightLevelMin       = 0
	BacklightLevelMax       = 95
	BacklightSensitivityMin = 0
	BacklightSensitivityMax = 10
)

func boolDigit(v bool) int {
	if v {
		return 1
	}
	return 0
}

// CmdInterfaceMode selects the board's interface mode.
func CmdInterfaceMode(mode int) string { return fmt.Sprintf("%%di:%d#", mode) }

// AckInterfaceMode is the literal confirmation of CmdInterfaceMode.
func AckInterfaceMode(mode int) string { return fmt.Sprintf("%%di:%d#\r", mode) }

// CmdSensorMode selects the sensor mode.
func CmdSensorMode(m SensorMode) string { return fmt.Sprintf("%%sm:%d#", int(m)) }

// AckSensorMode is the literal mode-activation frame the board sends once a
// sensor mode is active.
func AckSensorMode(m SensorMode) string { return "%" + m.String() + " mode activated#\r" }

// CmdStylusMessage enables or disables stylus detection messages.
func CmdStylusMessage(on bool) string { return fmt.Sprintf("%%sdm:%d#", boolDigit(on)) }

// AckStylusMessage is the literal confirmation of CmdStylusMessage.
func AckStylusMessage(on bool) string { return fmt.Sprintf("%%sdm:%d#\r", boolDigit(on)) }

// CmdSettlingDelay sets the stylus settling delay in milliseconds.
func CmdSettlingDelay(ms int) string { return fmt.Sprintf("%%sd:%d#", ms) }

// CmdMaxDeviation sets the maximum deviation between readings.
func CmdMaxDeviation(n int) string { return fmt.Sprintf("%%md:%d#", n) }

// CmdReadingCount sets how many readings are averaged per position.
func CmdReadingCount(n int) string { return fmt.Sprintf("%%rc:%d#", n) }

// CmdBacklight sets the backlight level.
func CmdBacklight(level int) string { return fmt.Sprintf("%%bl:%d#", level) }

// CmdBacklightAuto toggles automatic backlight.
func CmdBacklightAuto(on bool) string { return fmt.Sprintf("%%ba:%d#", boolDigit(on)) }

// CmdBacklightSensitivity sets the ambient light sensitivity.
func CmdBacklightSensitivity(n int) string { return fmt.Sprintf("%%bs:%d#", n) }

// CmdCalibrationState queries the stored calibration.
const CmdCalibrationState = "%cs?#"

// CmdBattery queries the battery level.
const CmdBattery = "%bat?#"

// CmdCalibrate tells the board to get ready to calibrate point id.
func CmdCalibrate(point int) string { return fmt.Sprintf("%%cal:%d#", point) }

// AckCalibrationReady is the literal confirmation of CmdCalibrate.
func AckCalibrationReady(point int) string { return fmt.Sprintf("%%cr:%d#\r", point) }

// Response patterns registered as expectations. They only have to locate the
// response; the state machine parses it with the named patterns in
// responses.go.
const (
	PatternSettlingDelay        = `%sd:\d+#`
	PatternMaxDeviation         = `%md:\d+#`
	PatternReadingCount         = `%rc:\d+#`
	PatternBacklight            = `%bl:\d+#`
	PatternBacklightAuto        = `%ba:[01]#`
	PatternBacklightSensitivity = `%bs:\d+#`
	PatternCalibrationState     = `%cs:[01],-?\d+,-?\d+#`
	PatternBattery              = `%bat:\d+#`
)

// PatternCalibrationPoint matches the touch confirmation for point id.
func PatternCalibrationPoint(point int) string {
	return fmt.Sprintf(`%%cp:%d,-?\d+#`, point)
}
