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
	"strconv"

	"github.com/MeasureBoard/measureboard-core/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// Mismatch is a setting whose synced value differs from its target.
type Mismatch struct {
	Setting string
	Got     string
	Want    string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: got %s, want %s", m.Setting, m.Got, m.Want)
}

// SyncResult reports the outcome of a sync. Commands that failed are listed
// in Errors; settings that did not take effect in Mismatches.
type SyncResult struct {
	Mismatches []Mismatch
	Errors     []error
	OK         bool
}

// syncCommands lists the sync commands in send order.
func syncCommands(t SyncTargets) []Command {
	return []Command{
		{
			Text:   protocol.CmdInterfaceMode(t.InterfaceMode),
			Expect: protocol.Literal(protocol.AckInterfaceMode(t.InterfaceMode)),
		},
		{
			Text:   protocol.CmdSensorMode(t.SensorMode),
			Expect: protocol.Literal(protocol.AckSensorMode(t.SensorMode)),
		},
		{
			Text:   protocol.CmdBacklight(t.BacklightLevel),
			Expect: protocol.MustPattern(protocol.PatternBacklight),
		},
		{
			Text:   protocol.CmdStylusMessage(t.StylusMessage),
			Expect: protocol.Literal(protocol.AckStylusMessage(t.StylusMessage)),
		},
		{
			Text:   protocol.CmdSettlingDelay(t.SettlingDelay),
			Expect: protocol.MustPattern(protocol.PatternSettlingDelay),
		},
		{
			Text:   protocol.CmdMaxDeviation(t.MaxDeviation),
			Expect: protocol.MustPattern(protocol.PatternMaxDeviation),
		},
		{
			Text:   protocol.CmdReadingCount(t.ReadingCount),
			Expect: protocol.MustPattern(protocol.PatternReadingCount),
		},
		{
			Text:   protocol.CmdCalibrationState,
			Expect: protocol.MustPattern(protocol.PatternCalibrationState),
		},
	}
}

// Sync pushes the sync targets to the board in a fixed order and checks
// that they took effect. Timeouts and mismatches are reported in the
// result. The error is only set when the sync could not run at all.
func (e *Engine) Sync(ctx context.Context) (SyncResult, error) {
	if err := e.beginSequence(ctx); err != nil {
		return SyncResult{}, err
	}
	defer e.endSequence()

	targets := e.SyncTargets()
	cmds := syncCommands(targets)
	for _, cmd := range cmds {
		if _, err := e.dispatcher.Queue(cmd); err != nil {
			return SyncResult{}, fmt.Errorf("queue sync command: %w", err)
		}
	}

	var res SyncResult
	for _, cmd := range cmds {
		if _, err := e.await(ctx, cmd.Expect, e.opts.ResponseTimeout); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("%s: %w", cmd.Text, err))
		}
	}

	res.Mismatches = compareState(e.machine.State(), targets)
	res.OK = len(res.Errors) == 0 && len(res.Mismatches) == 0
	if res.OK {
		e.machine.MarkSynced()
		log.Info().Msg("board synced")
	} else {
		log.Warn().
			Int("errors", len(res.Errors)).
			Int("mismatches", len(res.Mismatches)).
			Msg("board sync failed")
	}
	return res, nil
}

func compareState(s DeviceState, t SyncTargets) []Mismatch {
	var out []Mismatch
	checkInt := func(name string, got, want int) {
		if got != want {
			out = append(out, Mismatch{Setting: name, Got: strconv.Itoa(got), Want: strconv.Itoa(want)})
		}
	}
	checkInt("interface mode", s.InterfaceMode, t.InterfaceMode)
	if s.SensorMode != t.SensorMode {
		out = append(out, Mismatch{Setting: "sensor mode", Got: s.SensorMode.String(), Want: t.SensorMode.String()})
	}
	checkInt("backlight level", s.BacklightLevel, t.BacklightLevel)
	if s.StylusMessage != t.StylusMessage {
		out = append(out, Mismatch{
			Setting: "stylus message",
			Got:     strconv.FormatBool(s.StylusMessage),
			Want:    strconv.FormatBool(t.StylusMessage),
		})
	}
	checkInt("settling delay", s.SettlingDelay, t.SettlingDelay)
	checkInt("max deviation", s.MaxDeviation, t.MaxDeviation)
	checkInt("reading count", s.ReadingCount, t.ReadingCount)
	if t.RequireCalibration && !s.Calibration.Valid {
		out = append(out, Mismatch{Setting: "calibration", Got: "invalid", Want: "valid"})
	}
	return out
}
