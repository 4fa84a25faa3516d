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
	"errors"

	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
	"github.com/MeasureBoard/measureboard-core/pkg/protocol"
)

// ErrNotListening is returned when a command is queued while the engine is
// stopped.
var ErrNotListening = errors.New("engine is not listening")

// Dispatcher is the send queue. Queueing a command and registering its
// expectation happen under one lock so the expectation order always
// matches the send order.
type Dispatcher struct {
	correlator protocol.Correlator
	queue      []Command
	mu         syncutil.Mutex
	open       bool
}

// NewDispatcher returns a closed dispatcher feeding expectations to c.
func NewDispatcher(c protocol.Correlator) *Dispatcher {
	return &Dispatcher{correlator: c}
}

// Queue appends cmd to the send queue and registers its expectation.
func (d *Dispatcher) Queue(cmd Command) (*protocol.Expectation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return nil, ErrNotListening
	}
	d.queue = append(d.queue, cmd)
	if cmd.Expect != nil {
		d.correlator.Expect(cmd.Expect)
	}
	return cmd.Expect, nil
}

// ExpectOnly registers an expectation for a frame the board sends without
// being asked, such as a calibration touch confirmation.
func (d *Dispatcher) ExpectOnly(exp *protocol.Expectation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return ErrNotListening
	}
	d.correlator.Expect(exp)
	return nil
}

// Open allows commands to be queued.
func (d *Dispatcher) Open() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
}

// Close rejects further commands. Already queued commands stay queued until
// Flush.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
}

// IsOpen reports whether commands are accepted.
func (d *Dispatcher) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Flush drops every queued command and resets the correlator, resolving
// pending expectations with err.
func (d *Dispatcher) Flush(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = nil
	d.correlator.Reset(err)
}

// Len returns the number of commands waiting to be sent.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) next() (Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return Command{}, false
	}
	cmd := d.queue[0]
	d.queue = d.queue[1:]
	if len(d.queue) == 0 {
		d.queue = nil
	}
	return cmd, true
}
