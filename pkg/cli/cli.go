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

// Package cli implements the measureboard command: flag handling, setup of
// logging and config, the long running bridge and one-shot board actions.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/MeasureBoard/measureboard-core/internal/telemetry"
	"github.com/MeasureBoard/measureboard-core/pkg/config"
	"github.com/MeasureBoard/measureboard-core/pkg/database"
	"github.com/MeasureBoard/measureboard-core/pkg/helpers"
	"github.com/rs/zerolog/log"
)

type Flags struct {
	Device    *string
	Version   *bool
	List      *bool
	Daemon    *bool
	Calibrate *bool
	Sync      *bool
	Battery   *bool
	Layouts   *bool
	NoWatch   *bool
	History   *int
}

// SetupFlags defines the command's flags on fs.
func SetupFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		Device: fs.String(
			"device",
			"",
			"board address (Bluetooth MAC or serial port), saved to the config",
		),
		Version: fs.Bool(
			"version",
			false,
			"print version and exit",
		),
		List: fs.Bool(
			"list",
			false,
			"list serial ports and exit",
		),
		Daemon: fs.Bool(
			"daemon",
			false,
			"log to stderr as well as the log file",
		),
		Calibrate: fs.Bool(
			"calibrate",
			false,
			"calibrate the board and exit",
		),
		Sync: fs.Bool(
			"sync",
			false,
			"push configured settings to the board and exit",
		),
		Battery: fs.Bool(
			"battery",
			false,
			"print the board battery level and exit",
		),
		Layouts: fs.Bool(
			"layouts",
			false,
			"print the active zone layouts as CSV and exit",
		),
		NoWatch: fs.Bool(
			"no-watch",
			false,
			"do not reload the config when it changes",
		),
		History: fs.Int(
			"history",
			0,
			"print the last N recorded outputs and exit",
		),
	}
}

// Pre handles the flags that need neither config nor logging. It reports
// whether the command is done.
func (f *Flags) Pre(w io.Writer) (bool, error) {
	switch {
	case *f.Version:
		_, _ = fmt.Fprintf(w, "MeasureBoard v%s (%s/%s)\n", config.AppVersion, runtime.GOOS, runtime.GOARCH)
		return true, nil
	case *f.List:
		return true, PrintPorts(w, nil)
	}
	return false, nil
}

// Post runs a one-shot action if one was requested. It reports whether the
// command is done.
func (f *Flags) Post(ctx context.Context, w io.Writer, cfg *config.Instance, paths config.Paths) (bool, error) {
	switch {
	case *f.Layouts:
		return true, PrintLayouts(w, cfg)
	case *f.History > 0:
		db, err := database.Open(ctx, paths.HistoryPath())
		if err != nil {
			return true, fmt.Errorf("failed to open history: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close history")
			}
		}()
		return true, PrintHistory(ctx, w, db, *f.History)
	case *f.Sync:
		return true, RunSync(ctx, w, cfg, nil)
	case *f.Calibrate:
		return true, RunCalibrate(ctx, w, cfg, nil)
	case *f.Battery:
		return true, PrintBattery(ctx, w, cfg, nil)
	}
	return false, nil
}

// Setup creates the directories, starts logging, loads the config and
// enables telemetry when the user opted in.
//
//nolint:gocritic // config struct copied for immutability
func Setup(paths config.Paths, defaults config.Values, f *Flags, writers []io.Writer) (*config.Instance, error) {
	if err := helpers.InitLogging(paths.LogPath(), false, writers); err != nil {
		return nil, fmt.Errorf("error initializing logging: %w", err)
	}

	cfg, err := config.NewConfig(paths.ConfigDir, defaults)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	helpers.SetDebugLogging(cfg.DebugLogging())

	if *f.Device != "" && *f.Device != cfg.Device().Address {
		cfg.SetDeviceAddress(*f.Device)
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("error saving device: %w", err)
		}
		log.Info().Str("device", *f.Device).Msg("saved device address")
	}

	tel := cfg.Telemetry()
	if err := telemetry.Init(telemetry.Options{
		Enabled:    tel.Enabled,
		DSN:        tel.DSN,
		InstallID:  tel.InstallID,
		AppVersion: config.AppVersion,
		Device:     cfg.Device().Address,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg, nil
}

// Main is the whole command. It returns the process exit code.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(config.AppName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := SetupFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if done, err := f.Pre(stdout); done {
		return exitCode(stderr, err)
	}

	var writers []io.Writer
	if *f.Daemon {
		writers = []io.Writer{os.Stderr}
	}

	paths := config.DefaultPaths()
	cfg, err := Setup(paths, config.BaseDefaults, f, writers)
	if err != nil {
		return exitCode(stderr, err)
	}
	defer telemetry.Close()

	if done, err := f.Post(ctx, stdout, cfg, paths); done {
		return exitCode(stderr, err)
	}

	app := &App{
		Cfg:    cfg,
		Paths:  paths,
		Stdout: stdout,
		Watch:  !*f.NoWatch,
	}
	return exitCode(stderr, app.Run(ctx))
}

func exitCode(stderr io.Writer, err error) int {
	if err == nil {
		return 0
	}
	log.Error().Err(err).Msg("exiting with error")
	telemetry.Flush()
	_, _ = fmt.Fprintf(stderr, "Error: %s\n", err)
	return 1
}
