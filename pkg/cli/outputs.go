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

	"github.com/MeasureBoard/measureboard-core/pkg/config"
	"github.com/MeasureBoard/measureboard-core/pkg/database"
	"github.com/MeasureBoard/measureboard-core/pkg/outputs"
	"github.com/rs/zerolog/log"
)

// Sinks are the outputs enabled in the config, registered on one fanout.
type Sinks struct {
	Fanout    *outputs.Fanout
	WebSocket *outputs.WebSocket
	History   *database.HistoryDB
	closers   []namedCloser
}

type namedCloser struct {
	close func() error
	name  string
}

// BuildSinks creates every enabled output and adds it to fanout. On error
// the sinks created so far are closed.
func BuildSinks(
	ctx context.Context,
	cfg *config.Instance,
	paths config.Paths,
	fanout *outputs.Fanout,
	stdout io.Writer,
	status outputs.StatusFunc,
) (_ *Sinks, err error) {
	s := &Sinks{Fanout: fanout}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	outs := cfg.Outputs()

	if outs.Console.Enabled {
		if err := fanout.Add("console", outputs.NewConsole(stdout, outs.Console.Unit, outs.Console.JSON), 0); err != nil {
			return nil, fmt.Errorf("failed to add console output: %w", err)
		}
	}

	if outs.Keyboard.Enabled {
		kb, err := outputs.NewKeyboard(outs.Keyboard.Submit)
		if err != nil {
			return nil, fmt.Errorf("failed to create keyboard output: %w", err)
		}
		s.closers = append(s.closers, namedCloser{name: "keyboard", close: kb.Close})
		if err := fanout.Add("keyboard", kb, 0); err != nil {
			return nil, fmt.Errorf("failed to add keyboard output: %w", err)
		}
	}

	if outs.MQTT.Enabled {
		user, pass := cfg.MQTTCredentials()
		m := outputs.NewMQTT(outputs.MQTTOptions{
			Broker:   outs.MQTT.Broker,
			Topic:    outs.MQTT.Topic,
			Username: user,
			Password: pass,
			QoS:      outs.MQTT.QoS,
			Retained: outs.MQTT.Retained,
		})
		if err := m.Start(); err != nil {
			return nil, fmt.Errorf("failed to start mqtt output: %w", err)
		}
		s.closers = append(s.closers, namedCloser{name: "mqtt", close: m.Close})
		if err := fanout.Add("mqtt", m, 0); err != nil {
			return nil, fmt.Errorf("failed to add mqtt output: %w", err)
		}
	}

	if outs.WebSocket.Enabled {
		s.WebSocket = outputs.NewWebSocket(status)
		if err := fanout.Add("websocket", s.WebSocket, 0); err != nil {
			return nil, fmt.Errorf("failed to add websocket output: %w", err)
		}
	}

	if outs.History.Enabled {
		db, err := database.Open(ctx, paths.HistoryPath())
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		s.History = db
		s.closers = append(s.closers, namedCloser{name: "history", close: db.Close})
		h := outputs.NewHistory(db, cfg.Device().Address, nil)
		if err := fanout.Add("history", h, 0); err != nil {
			return nil, fmt.Errorf("failed to add history output: %w", err)
		}
		log.Info().Str("session", h.Session()).Msg("recording output history")
	}

	log.Info().Strs("outputs", fanout.Names()).Msg("outputs ready")
	return s, nil
}

// Close drains the fanout, then closes the sinks in reverse order.
func (s *Sinks) Close() {
	s.Fanout.Stop()
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.close(); err != nil {
			log.Warn().Err(err).Str("output", c.name).Msg("failed to close output")
		}
	}
	s.closers = nil
}
