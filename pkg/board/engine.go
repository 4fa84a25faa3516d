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

// Package board drives a measuring board over a byte transport.
//
// An Engine runs two workers once started. The listener reads the
// transport, splits and classifies frames, feeds sensor events to the state
// machine and hands everything else to the correlator. The handler sends
// queued commands one at a time, pairs response frames with expectations
// and applies confirmed responses to the state machine.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
	"github.com/MeasureBoard/measureboard-core/pkg/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultPollInterval       = 20 * time.Millisecond
	DefaultSendPacing         = 50 * time.Millisecond
	DefaultResponseTimeout    = 2 * time.Second
	DefaultCalibrationTimeout = 30 * time.Second
)

var (
	ErrAlreadyListening = errors.New("engine is already listening")
	ErrResponseTimeout  = errors.New("timed out waiting for response")
	ErrBoardReset       = errors.New("board reset")
)

// Transport is the duplex byte channel to the board. Receive may return no
// data when nothing arrived within the transport's read timeout. Errors that
// implement Timeout() bool and report true are not fatal.
type Transport interface {
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Options configure an Engine. Zero values select the defaults.
type Options struct {
	Clock              clockwork.Clock
	Correlator         protocol.Correlator
	Sink               Sink
	Settings           *Settings
	Targets            *SyncTargets
	PollInterval       time.Duration
	SendPacing         time.Duration
	ResponseTimeout    time.Duration
	CalibrationTimeout time.Duration
}

// Stats are running counters since the engine was created.
type Stats struct {
	Frames       uint64
	Events       uint64
	Responses    uint64
	DecodeErrors uint64
	Mismatches   uint64
	CommandsSent uint64
	Outputs      uint64
	Reboots      uint64
}

type counters struct {
	frames       atomic.Uint64
	events       atomic.Uint64
	responses    atomic.Uint64
	decodeErrors atomic.Uint64
	mismatches   atomic.Uint64
	commandsSent atomic.Uint64
	outputs      atomic.Uint64
	reboots      atomic.Uint64
}

// Engine runs the protocol for one transport.
type Engine struct {
	transport    Transport
	sink         Sink
	clock        clockwork.Clock
	correlator   protocol.Correlator
	err          error
	machine      *Machine
	dispatcher   *Dispatcher
	splitter     *protocol.Splitter
	limiter      *rate.Limiter
	seq          chan struct{}
	reboots      chan struct{}
	done         chan struct{}
	listenerDone chan struct{}
	handlerDone  chan struct{}
	targets      SyncTargets
	opts         Options
	stats        counters
	lifecycle    syncutil.Mutex
	mu           syncutil.RWMutex
	listening    bool
}

// New returns a stopped engine for t.
func New(t Transport, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Correlator == nil {
		opts.Correlator = protocol.NewMatcher()
	}
	if opts.Sink == nil {
		opts.Sink = discardSink{}
	}
	settings := DefaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}
	targets := DefaultSyncTargets()
	if opts.Targets != nil {
		targets = *opts.Targets
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.SendPacing <= 0 {
		opts.SendPacing = DefaultSendPacing
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = DefaultResponseTimeout
	}
	if opts.CalibrationTimeout <= 0 {
		opts.CalibrationTimeout = DefaultCalibrationTimeout
	}

	stopped := make(chan struct{})
	close(stopped)

	return &Engine{
		transport:    t,
		sink:         opts.Sink,
		clock:        opts.Clock,
		correlator:   opts.Correlator,
		machine:      NewMachine(settings),
		dispatcher:   NewDispatcher(opts.Correlator),
		splitter:     protocol.NewSplitter(),
		limiter:      rate.NewLimiter(rate.Every(opts.SendPacing), 1),
		seq:          make(chan struct{}, 1),
		reboots:      make(chan struct{}, 1),
		done:         stopped,
		listenerDone: stopped,
		handlerDone:  stopped,
		targets:      targets,
		opts:         opts,
	}
}

// Start launches the listener and handler workers. Both clear their stale
// state and wait for each other before doing any work; Start returns once
// both are through and commands can be queued. Workers also exit when ctx is
// cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	if e.listening {
		e.mu.Unlock()
		return ErrAlreadyListening
	}
	prev := e.done
	e.mu.Unlock()
	<-prev

	listenerDone := make(chan struct{})
	handlerDone := make(chan struct{})
	done := make(chan struct{})

	e.mu.Lock()
	e.listening = true
	e.err = nil
	e.done = done
	e.listenerDone = listenerDone
	e.handlerDone = handlerDone
	e.mu.Unlock()

	var ready sync.WaitGroup
	ready.Add(2)
	go e.listen(ctx, &ready, listenerDone)
	go e.handle(ctx, &ready, handlerDone)
	ready.Wait()
	e.dispatcher.Open()

	// Workers also exit when ctx is cancelled, so the engine must end up
	// in the same state Stop leaves it in before done is closed.
	go func() {
		<-listenerDone
		<-handlerDone
		e.dispatcher.Close()
		e.mu.Lock()
		e.listening = false
		e.mu.Unlock()
		e.dispatcher.Flush(ErrNotListening)
		close(done)
	}()

	log.Info().Msg("board engine started")
	return nil
}

// Stop rejects new commands, clears the listening flag and joins the
// listener then the handler. Commands still queued are dropped.
func (e *Engine) Stop() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.dispatcher.Close()

	e.mu.Lock()
	e.listening = false
	listenerDone, handlerDone, done := e.listenerDone, e.handlerDone, e.done
	e.mu.Unlock()

	<-listenerDone
	<-handlerDone
	<-done

	e.dispatcher.Flush(ErrNotListening)
	log.Info().Msg("board engine stopped")
}

// Done is closed when the workers have exited, whether through Stop, a
// cancelled context or a fatal transport error.
func (e *Engine) Done() <-chan struct{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.done
}

// Err returns the fatal transport error that stopped the workers, if any.
func (e *Engine) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

// IsListening reports whether the workers are running.
func (e *Engine) IsListening() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.listening
}

// Reboots receives a value after the board reported a reset. The state
// must be synced again.
func (e *Engine) Reboots() <-chan struct{} {
	return e.reboots
}

// State returns a copy of the device state.
func (e *Engine) State() DeviceState {
	return e.machine.State()
}

// SyncTargets returns the settings the next Sync pushes.
func (e *Engine) SyncTargets() SyncTargets {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.targets
}

// UpdateSettings replaces the machine tables and sync targets while
// running. New targets apply from the next Sync.
func (e *Engine) UpdateSettings(settings Settings, targets SyncTargets) {
	e.machine.UpdateSettings(settings)
	e.mu.Lock()
	e.targets = targets
	e.mu.Unlock()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Frames:       e.stats.frames.Load(),
		Events:       e.stats.events.Load(),
		Responses:    e.stats.responses.Load(),
		DecodeErrors: e.stats.decodeErrors.Load(),
		Mismatches:   e.stats.mismatches.Load(),
		CommandsSent: e.stats.commandsSent.Load(),
		Outputs:      e.stats.outputs.Load(),
		Reboots:      e.stats.reboots.Load(),
	}
}

// Queue appends a raw command to the send queue. Callers that need the
// response wait on the returned expectation.
func (e *Engine) Queue(cmd Command) (*protocol.Expectation, error) {
	return e.dispatcher.Queue(cmd)
}

func (e *Engine) running(ctx context.Context) bool {
	return ctx.Err() == nil && e.IsListening()
}

func (e *Engine) fail(err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.listening = false
	e.mu.Unlock()

	log.Error().Err(err).Msg("transport failed, stopping board engine")
	e.dispatcher.Close()
	e.dispatcher.Flush(err)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func (e *Engine) listen(ctx context.Context, ready *sync.WaitGroup, done chan struct{}) {
	defer close(done)

	e.splitter.Reset()
	e.correlator.ResetFrames()
	ready.Done()
	ready.Wait()

	for e.running(ctx) {
		if !e.listenOnce() {
			e.clock.Sleep(e.opts.PollInterval)
		}
	}
	log.Debug().Msg("listener exited")
}

func (e *Engine) handle(ctx context.Context, ready *sync.WaitGroup, done chan struct{}) {
	defer close(done)

	e.dispatcher.Flush(nil)
	ready.Done()
	ready.Wait()

	for e.running(ctx) {
		if !e.handleOnce() {
			e.clock.Sleep(e.opts.PollInterval)
		}
	}
	log.Debug().Msg("handler exited")
}

// listenOnce reads the transport once and processes every completed
// frame. It reports whether any data arrived.
func (e *Engine) listenOnce() bool {
	data, err := e.transport.Receive()
	if err != nil {
		if isTimeout(err) {
			return false
		}
		e.fail(fmt.Errorf("receive: %w", err))
		return true
	}
	if len(data) == 0 {
		return false
	}
	for _, frame := range e.splitter.Push(data) {
		e.handleFrame(frame)
	}
	return true
}

func (e *Engine) handleFrame(frame string) {
	e.stats.frames.Add(1)

	if protocol.IsRebootNotice(frame) {
		e.stats.reboots.Add(1)
		log.Warn().Str("frame", frame).Msg("board reported a reset")
		e.machine.HandleReboot()
		e.dispatcher.Flush(ErrBoardReset)
		select {
		case e.reboots <- struct{}{}:
		default:
		}
		return
	}
	if protocol.IsBlank(frame) {
		return
	}

	ev, err := protocol.Classify(frame)
	if err != nil {
		e.stats.decodeErrors.Add(1)
		log.Warn().Err(err).Msg("dropping undecodable frame")
		return
	}
	if ev.Kind == protocol.EventUnclassified {
		e.stats.responses.Add(1)
		e.correlator.Offer(frame)
		return
	}

	e.stats.events.Add(1)
	act := e.machine.HandleEvent(ev)
	if act.Output != nil {
		if err := e.sink.Deliver(*act.Output); err != nil {
			log.Warn().Err(err).Stringer("output", act.Output).Msg("failed to deliver output")
		} else {
			e.stats.outputs.Add(1)
		}
	}
	if !e.queueMachineCommands(act.Commands) && act.rollback != nil {
		act.rollback()
	}
}

// queueMachineCommands queues commands issued by key presses. It reports
// false if any of them was not queued.
func (e *Engine) queueMachineCommands(cmds []Command) bool {
	if len(cmds) == 0 {
		return true
	}
	if !e.tryBeginSequence() {
		log.Warn().Str("cmd", cmds[0].Text).Msg("command sequence in progress, skipping key command")
		return false
	}
	defer e.endSequence()

	for _, cmd := range cmds {
		if _, err := e.dispatcher.Queue(cmd); err != nil {
			log.Warn().Err(err).Str("cmd", cmd.Text).Msg("failed to queue key command")
			return false
		}
	}
	return true
}

// handleOnce sends at most one queued command, if pacing allows, then
// confirms every pairable response. It reports whether it did anything.
func (e *Engine) handleOnce() bool {
	worked := false
	if e.dispatcher.Len() > 0 && e.limiter.AllowN(e.clock.Now(), 1) {
		if cmd, ok := e.dispatcher.next(); ok {
			e.send(cmd)
			worked = true
		}
	}
	for _, r := range e.correlator.Match() {
		e.confirm(r)
		worked = true
	}
	return worked
}

func (e *Engine) send(cmd Command) {
	log.Debug().Str("cmd", cmd.Text).Msg("sending command")
	err := e.transport.Send([]byte(cmd.Text + protocol.CommandTerminator))
	if err == nil {
		e.stats.commandsSent.Add(1)
		return
	}
	if cmd.Expect != nil {
		e.correlator.Cancel(cmd.Expect)
	}
	if isTimeout(err) {
		log.Warn().Err(err).Str("cmd", cmd.Text).Msg("send timed out, command dropped")
		return
	}
	e.fail(fmt.Errorf("send %q: %w", cmd.Text, err))
}

func (e *Engine) confirm(r protocol.Result) {
	if r.Err != nil {
		e.stats.mismatches.Add(1)
		log.Warn().Err(r.Err).Msg("response mismatch, dropping frame and expectation")
		r.Expectation.Resolve(r.Frame, r.Err)
		return
	}
	resp, err := e.machine.HandleConfirmed(r.Frame)
	if err != nil {
		log.Warn().Err(err).Str("frame", r.Frame).Msg("confirmed response rejected")
	} else {
		log.Debug().Stringer("response", resp.Kind).Str("frame", r.Frame).Msg("response confirmed")
	}
	r.Expectation.Resolve(r.Frame, err)
}

func (e *Engine) beginSequence(ctx context.Context) error {
	select {
	case e.seq <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for command sequence: %w", ctx.Err())
	}
}

func (e *Engine) tryBeginSequence() bool {
	select {
	case e.seq <- struct{}{}:
		return true
	default:
		return false
	}
}

func (e *Engine) endSequence() {
	<-e.seq
}

// await waits for exp to resolve. On timeout or cancellation the
// expectation is withdrawn so it cannot consume a later frame.
func (e *Engine) await(ctx context.Context, exp *protocol.Expectation, timeout time.Duration) (string, error) {
	timer := e.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-exp.Done():
		return exp.Result()
	case <-timer.Chan():
		if e.correlator.Cancel(exp) {
			return "", fmt.Errorf("%w: %s", ErrResponseTimeout, exp)
		}
		return exp.Result()
	case <-ctx.Done():
		if e.correlator.Cancel(exp) {
			return "", ctx.Err()
		}
		return exp.Result()
	}
}

// request queues cmd and waits for its response. The caller must hold the
// sequence lock.
func (e *Engine) request(ctx context.Context, cmd Command) (string, error) {
	exp, err := e.dispatcher.Queue(cmd)
	if err != nil {
		return "", err
	}
	if exp == nil {
		return "", nil
	}
	return e.await(ctx, exp, e.opts.ResponseTimeout)
}
