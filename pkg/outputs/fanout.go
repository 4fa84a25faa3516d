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

// Package outputs delivers board outputs to the places a user reads them
// from: the console, a virtual keyboard, an MQTT topic, WebSocket clients and
// the history database.
package outputs

import (
	"errors"
	"sync"

	"github.com/MeasureBoard/measureboard-core/pkg/board"
	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

// DefaultQueueSize is how many outputs a slow sink may fall behind by before
// outputs are dropped for it.
const DefaultQueueSize = 32

// ErrFanoutStopped is returned by Add after Stop.
var ErrFanoutStopped = errors.New("fanout stopped")

type subscriber struct {
	sink  board.Sink
	queue chan board.Output
	name  string
}

// Fanout is a board.Sink that hands every output to a set of sinks. Each
// sink drains its own queue in its own goroutine, so a slow sink never
// blocks the board or the other sinks; when its queue is full the output is
// dropped for that sink only.
type Fanout struct {
	subscribers map[string]*subscriber
	wg          sync.WaitGroup
	mu          syncutil.RWMutex
	stopped     bool
}

func NewFanout() *Fanout {
	return &Fanout{
		subscribers: make(map[string]*subscriber),
	}
}

// Add registers a sink under a unique name. queueSize <= 0 selects
// DefaultQueueSize. Adding a name twice replaces the earlier sink.
func (f *Fanout) Add(name string, sink board.Sink, queueSize int) error {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return ErrFanoutStopped
	}
	if old, ok := f.subscribers[name]; ok {
		close(old.queue)
	}

	sub := &subscriber{
		name:  name,
		sink:  sink,
		queue: make(chan board.Output, queueSize),
	}
	f.subscribers[name] = sub

	f.wg.Add(1)
	go f.drain(sub)

	log.Debug().Str("sink", name).Int("queue_size", queueSize).Msg("output sink registered")
	return nil
}

// Remove unregisters a sink. Outputs already queued for it are still
// delivered.
func (f *Fanout) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if sub, ok := f.subscribers[name]; ok {
		delete(f.subscribers, name)
		close(sub.queue)
		log.Debug().Str("sink", name).Msg("output sink removed")
	}
}

// Names returns the registered sink names.
func (f *Fanout) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.subscribers))
	for name := range f.subscribers {
		names = append(names, name)
	}
	return names
}

// Deliver queues out for every sink without blocking.
func (f *Fanout) Deliver(out board.Output) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for name, sub := range f.subscribers {
		select {
		case sub.queue <- out:
		default:
			log.Warn().
				Str("sink", name).
				Stringer("output", out).
				Msg("sink queue full, dropping output")
		}
	}
	return nil
}

func (f *Fanout) drain(sub *subscriber) {
	defer f.wg.Done()
	for out := range sub.queue {
		if err := sub.sink.Deliver(out); err != nil {
			log.Error().Err(err).Str("sink", sub.name).Stringer("output", out).Msg("failed to deliver output")
		}
	}
	log.Debug().Str("sink", sub.name).Msg("sink queue drained")
}

// Stop closes every queue and waits for the sinks to finish what was
// already queued.
func (f *Fanout) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	for name, sub := range f.subscribers {
		close(sub.queue)
		delete(f.subscribers, name)
	}
	f.mu.Unlock()

	f.wg.Wait()
}
