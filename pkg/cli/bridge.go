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
	"time"

	"github.com/MeasureBoard/measureboard-core/pkg/board"
	"github.com/MeasureBoard/measureboard-core/pkg/config"
	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
	"github.com/MeasureBoard/measureboard-core/pkg/transport"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const defaultReconnectDelay = 5 * time.Second

var (
	ErrNoDevice      = errors.New("no device configured")
	errEngineStopped = errors.New("engine stopped")
)

// DialFunc opens the link to a board.
type DialFunc func(ctx context.Context, identifier string, opts transport.Options) (board.Transport, error)

// DialTransport dials with the transport package.
func DialTransport(ctx context.Context, identifier string, opts transport.Options) (board.Transport, error) {
	link, err := transport.Dial(ctx, identifier, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", identifier, err)
	}
	return link, nil
}

func transportOptions(dev config.Device) transport.Options {
	return transport.Options{
		Adapter:      dev.Adapter,
		BaudRate:     dev.BaudRate,
		Channel:      dev.Channel,
		CheckAdapter: dev.CheckAdapter,
	}
}

// Status is the bridge snapshot served to output clients.
type Status struct {
	State     *board.DeviceState `json:"state,omitempty"`
	Stats     *board.Stats       `json:"stats,omitempty"`
	Device    string             `json:"device"`
	LastError string             `json:"lastError,omitempty"`
	Connected bool               `json:"connected"`
}

// Bridge keeps one engine connected to the configured board, dialling again
// after a fixed delay whenever the link drops.
type Bridge struct {
	clock   clockwork.Clock
	cfg     *config.Instance
	sink    board.Sink
	dial    DialFunc
	engine  *board.Engine
	lastErr error
	mu      syncutil.RWMutex
}

func NewBridge(cfg *config.Instance, sink board.Sink, dial DialFunc, clock clockwork.Clock) *Bridge {
	if dial == nil {
		dial = DialTransport
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Bridge{
		clock: clock,
		cfg:   cfg,
		sink:  sink,
		dial:  dial,
	}
}

// Run connects and reconnects until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	if b.cfg.Device().Address == "" {
		return ErrNoDevice
	}

	for {
		err := b.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		b.mu.Lock()
		b.lastErr = err
		b.mu.Unlock()

		delay := b.cfg.ReconnectDelay()
		if delay <= 0 {
			delay = defaultReconnectDelay
		}
		log.Warn().
			Err(err).
			Str("kind", transport.KindOf(err).String()).
			Dur("retryIn", delay).
			Msg("board connection lost")

		select {
		case <-ctx.Done():
			return nil
		case <-b.clock.After(delay):
		}
	}
}

func (b *Bridge) session(ctx context.Context) error {
	dev := b.cfg.Device()
	tr, err := b.dial(ctx, dev.Address, transportOptions(dev))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := tr.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("error closing board link")
		}
	}()

	opts := b.cfg.EngineOptions()
	opts.Sink = b.sink
	e := board.New(tr, opts)
	if err := e.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer e.Stop()

	b.mu.Lock()
	b.engine = e
	b.lastErr = nil
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.engine = nil
		b.mu.Unlock()
	}()

	log.Info().Str("device", dev.Address).Msg("board connected")
	syncBoard(ctx, e)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.Done():
			if err := e.Err(); err != nil {
				return err
			}
			return errEngineStopped
		case <-e.Reboots():
			log.Warn().Msg("board rebooted, syncing again")
			syncBoard(ctx, e)
		}
	}
}

func syncBoard(ctx context.Context, e *board.Engine) {
	res, err := e.Sync(ctx)
	if err != nil {
		log.Error().Err(err).Msg("board sync could not run")
		return
	}
	for _, m := range res.Mismatches {
		log.Warn().Str("mismatch", m.String()).Msg("board setting not applied")
	}
	for _, err := range res.Errors {
		log.Warn().Err(err).Msg("board sync command failed")
	}
}

// Engine returns the engine of the current connection, nil when down.
func (b *Bridge) Engine() *board.Engine {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.engine
}

// ApplyConfig pushes reloaded settings into the running engine. New sync
// targets are sent to the board straight away.
func (b *Bridge) ApplyConfig(ctx context.Context) {
	e := b.Engine()
	if e == nil {
		return
	}
	e.UpdateSettings(b.cfg.BoardSettings(), b.cfg.SyncTargets())
	syncBoard(ctx, e)
}

func (b *Bridge) Status() any {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Status{Device: b.cfg.Device().Address}
	if b.lastErr != nil {
		st.LastError = b.lastErr.Error()
	}
	if b.engine != nil && b.engine.IsListening() {
		state := b.engine.State()
		stats := b.engine.Stats()
		st.Connected = true
		st.State = &state
		st.Stats = &stats
	}
	return st
}
