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
	"context"
	"fmt"

	"github.com/MeasureBoard/measureboard-core/pkg/protocol"
)

// RangeError rejects a setting value before any command is queued.
type RangeError struct {
	Setting string
	Value   int
	Min     int
	Max     int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %d out of range, must be between %d and %d", e.Setting, e.Value, e.Min, e.Max)
}

func checkRange(setting string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &RangeError{Setting: setting, Value: v, Min: lo, Max: hi}
	}
	return nil
}

// exec runs a single command as its own sequence.
func (e *Engine) exec(ctx context.Context, cmd Command) (string, error) {
	if err := e.beginSequence(ctx); err != nil {
		return "", err
	}
	defer e.endSequence()

	frame, err := e.request(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("%s: %w", cmd.Text, err)
	}
	return frame, nil
}

// SetSensorMode switches the sensor mode and waits for the activation
// frame.
func (e *Engine) SetSensorMode(ctx context.Context, mode protocol.SensorMode) error {
	if mode < protocol.ModeLength || mode > protocol.ModeNumeric {
		return &RangeError{
			Setting: "sensor mode",
			Value:   int(mode),
			Min:     int(protocol.ModeLength),
			Max:     int(protocol.ModeNumeric),
		}
	}
	_, err := e.exec(ctx, Command{
		Text:   protocol.CmdSensorMode(mode),
		Expect: protocol.Literal(protocol.AckSensorMode(mode)),
	})
	return err
}

// SetStylusMessage enables or disables stylus detection messages.
func (e *Engine) SetStylusMessage(ctx context.Context, on bool) error {
	_, err := e.exec(ctx, Command{
		Text:   protocol.CmdStylusMessage(on),
		Expect: protocol.Literal(protocol.AckStylusMessage(on)),
	})
	return err
}

// SetSettlingDelay sets the stylus settling delay in milliseconds.
func (e *Engine) SetSettlingDelay(ctx context.Context, ms int) error {
	if err := checkRange("settling delay", ms,
		protocol.SettlingDelayMin, protocol.SettlingDelayMax); err != nil {
		return err
	}
	_, err := e.exec(ctx, Command{
		Text:   protocol.CmdSettlingDelay(ms),
		Expect: protocol.MustPattern(protocol.PatternSettlingDelay),
	})
	return err
}

// SetMaxDeviation sets the maximum deviation between readings.
func (e *Engine) SetMaxDeviation(ctx context.Context, n int) error {
	if err := checkRange("max deviation", n,
		protocol.MaxDeviationMin, protocol.MaxDeviationMax); err != nil {
		return err
	}
	_, err := e.exec(ctx, Command{
		Text:   protocol.CmdMaxDeviation(n),
		Expect: protocol.MustPattern(protocol.PatternMaxDeviation),
	})
	return err
}

// SetReadingCount sets how many readings are averaged.
func (e *Engine) SetReadingCount(ctx context.Context, n int) error {
	if err := checkRange("reading count", n,
		protocol.ReadingCountMin, protocol.ReadingCountMax); err != nil {
		return err
	}
	_, err := e.exec(ctx, Command{
		Text:   protocol.CmdReadingCount(n),
		Expect: protocol.MustPattern(protocol.PatternReadingCount),
	})
	return err
}

// SetBacklight sets the backlight level. The allowed range is the one the
// machine was configured with.
func (e *Engine) SetBacklight(ctx context.Context, level int) error {
	s := e.machine.Settings()
	if err := checkRange("backlight level", level, s.BacklightMin, s.BacklightMax); err != nil {
		return err
	}
	_, err := e.exec(ctx, Command{
		Text:   protocol.CmdBacklight(level),
		Expect: protocol.MustPattern(protocol.PatternBacklight),
	})
	return err
}

// SetBacklightAuto toggles automatic backlight control.
func (e *Engine) SetBacklightAuto(ctx context.Context, on bool) error {
	_, err := e.exec(ctx, Command{
		Text:   protocol.CmdBacklightAuto(on),
		Expect: protocol.MustPattern(protocol.PatternBacklightAuto),
	})
	return err
}

// SetBacklightSensitivity sets the ambient light sensitivity.
func (e *Engine) SetBacklightSensitivity(ctx context.Context, n int) error {
	if err := checkRange("backlight sensitivity", n,
		protocol.BacklightSensitivityMin, protocol.BacklightSensitivityMax); err != nil {
		return err
	}
	_, err := e.exec(ctx, Command{
		Text:   protocol.CmdBacklightSensitivity(n),
		Expect: protocol.MustPattern(protocol.PatternBacklightSensitivity),
	})
	return err
}

// QueryBattery asks the board for its battery level in percent.
func (e *Engine) QueryBattery(ctx context.Context) (int, error) {
	if _, err := e.exec(ctx, Command{
		Text:   protocol.CmdBattery,
		Expect: protocol.MustPattern(protocol.PatternBattery),
	}); err != nil {
		return 0, err
	}
	return e.machine.State().Battery, nil
}

// QueryCalibration reads the calibration stored on the board.
func (e *Engine) QueryCalibration(ctx context.Context) (Calibration, error) {
	if _, err := e.exec(ctx, Command{
		Text:   protocol.CmdCalibrationState,
		Expect: protocol.MustPattern(protocol.PatternCalibrationState),
	}); err != nil {
		return Calibration{}, err
	}
	return e.machine.State().Calibration, nil
}
