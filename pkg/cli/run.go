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
	"fmt"
	"io"
	"net"
	"time"

	"github.com/MeasureBoard/measureboard-core/pkg/config"
	"github.com/MeasureBoard/measureboard-core/pkg/database"
	"github.com/MeasureBoard/measureboard-core/pkg/discovery"
	"github.com/MeasureBoard/measureboard-core/pkg/helpers"
	"github.com/MeasureBoard/measureboard-core/pkg/outputs"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const historyCleanupInterval = 24 * time.Hour

// App wires the bridge to its outputs.
type App struct {
	Clock  clockwork.Clock
	Dial   DialFunc
	Stdout io.Writer
	Cfg    *config.Instance
	Paths  config.Paths
	// Watch reloads the config on file changes.
	Watch bool
}

// Run connects to the board and delivers outputs until ctx is done or a
// component fails.
func (a *App) Run(ctx context.Context) (returnErr error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("panic recovered: %v", r)
			returnErr = fmt.Errorf("panic: %v", r)
		}
	}()

	if a.Clock == nil {
		a.Clock = clockwork.NewRealClock()
	}

	fanout := outputs.NewFanout()
	bridge := NewBridge(a.Cfg, fanout, a.Dial, a.Clock)

	sinks, err := BuildSinks(ctx, a.Cfg, a.Paths, fanout, a.Stdout, bridge.Status)
	if err != nil {
		return err
	}
	defer sinks.Close()

	var ln net.Listener
	wsCfg := a.Cfg.Outputs().WebSocket
	if sinks.WebSocket != nil {
		ln, err = net.Listen("tcp", wsCfg.Listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", wsCfg.Listen, err)
		}
		if wsCfg.Advertise {
			if svc := a.advertise(ctx, wsCfg, ln.Addr()); svc != nil {
				defer svc.Stop()
			}
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return bridge.Run(ctx)
	})

	if ln != nil {
		g.Go(func() error {
			return sinks.WebSocket.ServeListener(ctx, ln)
		})
	}

	if sinks.History != nil {
		g.Go(func() error {
			a.cleanupHistory(ctx, sinks.History)
			return nil
		})
	}

	if a.Watch {
		g.Go(func() error {
			return a.Cfg.Watch(ctx, func() {
				helpers.SetDebugLogging(a.Cfg.DebugLogging())
				bridge.ApplyConfig(ctx)
			})
		})
	}

	log.Info().Str("device", a.Cfg.Device().Address).Msg("measureboard running")
	if err := g.Wait(); err != nil {
		return fmt.Errorf("measureboard stopped: %w", err)
	}
	return nil
}

func (a *App) advertise(ctx context.Context, ws config.WebSocket, addr net.Addr) *discovery.Service {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil
	}
	svc := discovery.New(discovery.Options{
		Clock:        a.Clock,
		InstanceName: ws.InstanceName,
		Version:      config.AppVersion,
		Device:       a.Cfg.Device().Address,
		Port:         tcpAddr.Port,
	})
	if err := svc.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to advertise output server")
		return nil
	}
	return svc
}

// cleanupHistory trims old entries now and once a day until ctx is done.
func (a *App) cleanupHistory(ctx context.Context, db *database.HistoryDB) {
	for {
		days := a.Cfg.Outputs().History.RetentionDays
		if days > 0 {
			n, err := db.Cleanup(ctx, a.Clock.Now(), days)
			if err != nil {
				log.Warn().Err(err).Msg("history cleanup failed")
			} else if n > 0 {
				log.Info().Int64("removed", n).Msg("history cleaned up")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-a.Clock.After(historyCleanupInterval):
		}
	}
}
