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
	"errors"
	"fmt"

	"github.com/MeasureBoard/measureboard-core/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// ErrCalibrationFailed wraps every calibration failure. A failed
// calibration leaves the stored calibration untouched.
var ErrCalibrationFailed = errors.New("calibration failed")

// Calibrate runs both calibration points in order.
func (e *Engine) Calibrate(ctx context.Context) (Calibration, error) {
	if err := e.beginSequence(ctx); err != nil {
		return Calibration{}, err
	}
	defer e.endSequence()

	for _, point := range []int{protocol.CalibrationPoint1, protocol.CalibrationPoint2} {
		if err := e.calibratePoint(ctx, point); err != nil {
			return Calibration{}, err
		}
	}
	return e.machine.State().Calibration, nil
}

// CalibratePoint calibrates a single point. The board first acknowledges
// that it is ready, then confirms the point once the stylus touches it.
func (e *Engine) CalibratePoint(ctx context.Context, point int) error {
	if err := e.beginSequence(ctx); err != nil {
		return err
	}
	defer e.endSequence()
	return e.calibratePoint(ctx, point)
}

func (e *Engine) calibratePoint(ctx context.Context, point int) error {
	if err := e.machine.BeginCalibration(point); err != nil {
		return fmt.Errorf("%w: %w", ErrCalibrationFailed, err)
	}

	log.Info().Int("point", point).Msg("calibration started")
	if _, err := e.request(ctx, Command{
		Text:   protocol.CmdCalibrate(point),
		Expect: protocol.Literal(protocol.AckCalibrationReady(point)),
	}); err != nil {
		e.machine.AbortCalibration()
		return fmt.Errorf("%w: point %d not ready: %w", ErrCalibrationFailed, point, err)
	}

	touch := protocol.MustPattern(protocol.PatternCalibrationPoint(point))
	if err := e.dispatcher.ExpectOnly(touch); err != nil {
		e.machine.AbortCalibration()
		return fmt.Errorf("%w: %w", ErrCalibrationFailed, err)
	}

	log.Info().Int("point", point).Msg("waiting for stylus touch")
	if _, err := e.await(ctx, touch, e.opts.CalibrationTimeout); err != nil {
		e.machine.AbortCalibration()
		return fmt.Errorf("%w: point %d not confirmed: %w", ErrCalibrationFailed, point, err)
	}

	log.Info().Int("point", point).Msg("calibration point confirmed")
	return nil
}
