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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/MeasureBoard/measureboard-core/pkg/board"
	"github.com/MeasureBoard/measureboard-core/pkg/config"
	"github.com/MeasureBoard/measureboard-core/pkg/database"
	"github.com/MeasureBoard/measureboard-core/pkg/protocol"
	"github.com/MeasureBoard/measureboard-core/pkg/transport"
	"github.com/rs/zerolog/log"
)

var ErrSyncFailed = errors.New("sync failed")

// PrintPorts lists serial ports a board may be attached to.
func PrintPorts(w io.Writer, list func() ([]string, error)) error {
	if list == nil {
		list = transport.ListPorts
	}
	ports, err := list()
	if err != nil {
		return fmt.Errorf("failed to list ports: %w", err)
	}
	if len(ports) == 0 {
		_, _ = fmt.Fprintln(w, "No serial ports found")
		return nil
	}
	for _, p := range ports {
		_, _ = fmt.Fprintln(w, p)
	}
	return nil
}

// PrintLayouts writes the active zone layouts as CSV.
func PrintLayouts(w io.Writer, cfg *config.Instance) error {
	//nolint:wrapcheck // already wrapped
	return config.WriteLayouts(w, cfg.BoardSettings().Layouts)
}

// PrintHistory writes the newest history entries, newest first.
func PrintHistory(ctx context.Context, w io.Writer, db *database.HistoryDB, limit int) error {
	entries, err := db.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tKIND\tOUTPUT\tDEVICE")
	for _, e := range entries {
		out := e.Symbol
		if e.Kind == board.OutputMeasurement.String() {
			out = fmt.Sprint(e.Value)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Time.Local().Format(time.DateTime), e.Kind, out, e.Device)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// withEngine dials the configured board and runs fn with a started engine.
func withEngine(
	ctx context.Context,
	cfg *config.Instance,
	dial DialFunc,
	fn func(e *board.Engine) error,
) error {
	if dial == nil {
		dial = DialTransport
	}
	dev := cfg.Device()
	if dev.Address == "" {
		return ErrNoDevice
	}
	tr, err := dial(ctx, dev.Address, transportOptions(dev))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := tr.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("error closing board link")
		}
	}()

	e := board.New(tr, cfg.EngineOptions())
	if err := e.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer e.Stop()
	return fn(e)
}

// RunSync pushes the configured settings to the board and reports what did
// not take effect.
func RunSync(ctx context.Context, w io.Writer, cfg *config.Instance, dial DialFunc) error {
	return withEngine(ctx, cfg, dial, func(e *board.Engine) error {
		res, err := e.Sync(ctx)
		if err != nil {
			return fmt.Errorf("failed to sync: %w", err)
		}
		for _, err := range res.Errors {
			_, _ = fmt.Fprintf(w, "error: %v\n", err)
		}
		for _, m := range res.Mismatches {
			_, _ = fmt.Fprintf(w, "mismatch: %s\n", m)
		}
		if !res.OK {
			return ErrSyncFailed
		}
		_, _ = fmt.Fprintln(w, "Board synced")
		return nil
	})
}

// RunCalibrate walks the user through both calibration points.
func RunCalibrate(ctx context.Context, w io.Writer, cfg *config.Instance, dial DialFunc) error {
	return withEngine(ctx, cfg, dial, func(e *board.Engine) error {
		for _, point := range []int{protocol.CalibrationPoint1, protocol.CalibrationPoint2} {
			_, _ = fmt.Fprintf(w, "Touch calibration point %d with the stylus\n", point)
			if err := e.CalibratePoint(ctx, point); err != nil {
				//nolint:wrapcheck // already wrapped
				return err
			}
		}
		cal, err := e.QueryCalibration(ctx)
		if err != nil {
			return fmt.Errorf("failed to read calibration: %w", err)
		}
		_, _ = fmt.Fprintf(w, "Calibrated: %d, %d\n", cal.Points[0], cal.Points[1])
		return nil
	})
}

// PrintBattery reports the board's battery charge.
func PrintBattery(ctx context.Context, w io.Writer, cfg *config.Instance, dial DialFunc) error {
	return withEngine(ctx, cfg, dial, func(e *board.Engine) error {
		pct, err := e.QueryBattery(ctx)
		if err != nil {
			return fmt.Errorf("failed to read battery: %w", err)
		}
		_, _ = fmt.Fprintf(w, "Battery: %d%%\n", pct)
		return nil
	})
}
