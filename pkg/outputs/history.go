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

package outputs

import (
	"context"
	"fmt"
	"time"

	"github.com/MeasureBoard/measureboard-core/pkg/board"
	"github.com/MeasureBoard/measureboard-core/pkg/database"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const historyWriteTimeout = 2 * time.Second

// Recorder stores history entries.
type Recorder interface {
	Add(ctx context.Context, entry database.Entry) (int64, error)
}

// History records every output with the session and device it came from.
type History struct {
	recorder Recorder
	clock    clockwork.Clock
	session  string
	device   string
}

// NewHistory starts a new session for device. A nil clock uses the real
// clock.
func NewHistory(recorder Recorder, device string, clock clockwork.Clock) *History {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &History{
		recorder: recorder,
		clock:    clock,
		session:  uuid.New().String(),
		device:   device,
	}
}

// Session returns the session ID entries are recorded under.
func (h *History) Session() string {
	return h.session
}

func (h *History) Deliver(out board.Output) error {
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()

	_, err := h.recorder.Add(ctx, database.Entry{
		Time:    h.clock.Now(),
		Session: h.session,
		Device:  h.device,
		Kind:    out.Kind.String(),
		Value:   out.Value,
		Symbol:  out.Symbol,
	})
	if err != nil {
		return fmt.Errorf("failed to record output: %w", err)
	}
	return nil
}
