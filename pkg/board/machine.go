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
	"fmt"

	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
	"github.com/MeasureBoard/measureboard-core/pkg/protocol"
	"github.com/rs/zerolog/log"
)

var (
	// ErrIllegalTransition is returned when a confirmed response does not fit
	// the current calibration phase.
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrUnknownResponse is returned for a confirmed frame that matches none
	// of the known response patterns.
	ErrUnknownResponse = errors.New("unknown response")
)

// Command is a line of text for the board plus the response it must
// produce, if any.
type Command struct {
	Expect *protocol.Expectation
	Text   string
}

// Action is what the state machine wants done after an event: an output to
// deliver and commands to queue. Either may be empty.
type Action struct {
	Output *Output
	// rollback undoes the state change made for Commands. It runs when the
	// commands could not be queued.
	rollback func()
	Commands []Command
}

// Machine owns the device state. Sensor events and confirmed responses are
// the only inputs that change it.
type Machine struct {
	settings  Settings
	state     DeviceState
	confirmed [2]bool
	mu        syncutil.RWMutex
}

// NewMachine returns a machine in the measuring zone with the pen selected.
func NewMachine(settings Settings) *Machine {
	return &Machine{
		settings: settings,
		state: DeviceState{
			Zone:   ZoneMeasuring,
			Stylus: StylusPen,
		},
	}
}

// State returns a copy of the current device state.
func (m *Machine) State() DeviceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Settings returns the tables currently in use.
func (m *Machine) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// UpdateSettings swaps the tables. The device state is kept.
func (m *Machine) UpdateSettings(settings Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
}

// HandleEvent applies a sensor event.
func (m *Machine) HandleEvent(ev protocol.Event) Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case protocol.EventPosition:
		return m.handlePosition(ev.Value)
	case protocol.EventSwipe:
		if ev.Value > m.settings.SwipeThreshold {
			m.state.SwipeArmed = true
		}
		return Action{}
	case protocol.EventKey:
		return m.handleKey(ev.Key)
	case protocol.EventUnclassified:
	}
	return Action{}
}

func (m *Machine) handlePosition(pos int) Action {
	if m.state.SwipeArmed {
		m.state.SwipeArmed = false
		zone := m.settings.Bands.Select(pos)
		if zone != m.state.Zone {
			log.Debug().Stringer("from", m.state.Zone).Stringer("to", zone).Msg("output zone changed")
		}
		m.state.Zone = zone
		return Action{}
	}

	var out Output
	if m.state.Zone == ZoneMeasuring {
		out = Measurement(pos - m.settings.Offset(m.state.Stylus))
	} else {
		sym, ok := m.settings.Layouts[m.state.Zone].Lookup(pos)
		if !ok {
			return Action{}
		}
		out = Symbol(sym)
	}
	return m.emit(out)
}

func (m *Machine) handleKey(key protocol.Key) Action {
	switch key.Symbol {
	case protocol.KeyStylus:
		if m.state.Stylus == StylusPen {
			m.state.Stylus = StylusFinger
		} else {
			m.state.Stylus = StylusPen
		}
		return Action{}
	case protocol.KeyBacklightUp:
		return m.stepBacklight(m.settings.BacklightStep)
	case protocol.KeyBacklightDown:
		return m.stepBacklight(-m.settings.BacklightStep)
	case protocol.KeyMute:
		m.state.Muted = !m.state.Muted
		return Action{}
	case protocol.KeyMode:
		next := m.state.SensorMode.Next()
		return Action{Commands: []Command{{
			Text:   protocol.CmdSensorMode(next),
			Expect: protocol.Literal(protocol.AckSensorMode(next)),
		}}}
	default:
		return m.emit(Symbol(key.Symbol))
	}
}

func (m *Machine) stepBacklight(step int) Action {
	prev := m.state.BacklightLevel
	level := min(max(prev+step, m.settings.BacklightMin), m.settings.BacklightMax)
	m.state.BacklightLevel = level
	return Action{
		Commands: []Command{{
			Text:   protocol.CmdBacklight(level),
			Expect: protocol.MustPattern(protocol.PatternBacklight),
		}},
		rollback: func() { m.restoreBacklight(level, prev) },
	}
}

// restoreBacklight puts the level back to prev unless something else has
// changed it since it was set to level.
func (m *Machine) restoreBacklight(level, prev int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.BacklightLevel == level {
		m.state.BacklightLevel = prev
	}
}

func (m *Machine) emit(out Output) Action {
	if m.state.Muted {
		return Action{}
	}
	return Action{Output: &out}
}

// HandleReboot records a reboot notice. Any calibration in progress is
// abandoned and the state must be synced again.
func (m *Machine) HandleReboot() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.RebootSeen = true
	m.state.SwipeArmed = false
	m.state.CalibrationPhase = CalibrationIdle
	m.state.CalibrationPoint = 0
}

// MarkSynced clears the reboot flag after a successful sync.
func (m *Machine) MarkSynced() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.RebootSeen = false
}

// BeginCalibration starts a calibration run for point.
func (m *Machine) BeginCalibration(point int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if point != protocol.CalibrationPoint1 && point != protocol.CalibrationPoint2 {
		return fmt.Errorf("unknown calibration point %d", point)
	}
	if m.state.CalibrationPhase != CalibrationIdle {
		return fmt.Errorf("%w: calibration already %s", ErrIllegalTransition, m.state.CalibrationPhase)
	}
	m.state.CalibrationPhase = CalibrationAwaitingReady
	m.state.CalibrationPoint = point
	return nil
}

// AbortCalibration returns to idle without touching the stored
// calibration.
func (m *Machine) AbortCalibration() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.CalibrationPhase = CalibrationIdle
	m.state.CalibrationPoint = 0
}

// HandleConfirmed applies a response frame that satisfied its expectation.
func (m *Machine) HandleConfirmed(frame string) (protocol.Response, error) {
	resp := protocol.IdentifyResponse(frame)
	if resp.Kind == protocol.ResponseUnknown {
		return resp, fmt.Errorf("%w: %q", ErrUnknownResponse, frame)
	}

	if resp.Kind == protocol.ResponseSensorMode {
		mode, err := protocol.ParseSensorMode(resp.Args[0])
		if err != nil {
			return resp, err
		}
		m.mu.Lock()
		m.state.SensorMode = mode
		m.mu.Unlock()
		return resp, nil
	}

	args := make([]int, len(resp.Args))
	for i := range resp.Args {
		n, err := resp.Int(i)
		if err != nil {
			return resp, err
		}
		args[i] = n
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch resp.Kind {
	case protocol.ResponseInterfaceMode:
		m.state.InterfaceMode = args[0]
	case protocol.ResponseStylusMessage:
		m.state.StylusMessage = args[0] == 1
	case protocol.ResponseSettlingDelay:
		m.state.SettlingDelay = args[0]
	case protocol.ResponseMaxDeviation:
		m.state.MaxDeviation = args[0]
	case protocol.ResponseReadingCount:
		m.state.ReadingCount = args[0]
	case protocol.ResponseBacklight:
		m.state.BacklightLevel = args[0]
	case protocol.ResponseBacklightAuto:
		m.state.BacklightAuto = args[0] == 1
	case protocol.ResponseBacklightSensitivity:
		m.state.BacklightSensitivity = args[0]
	case protocol.ResponseBattery:
		m.state.Battery = args[0]
	case protocol.ResponseCalibrationState:
		valid := args[0] == 1
		m.state.Calibration = Calibration{Valid: valid, Points: [2]int{args[1], args[2]}}
		m.confirmed = [2]bool{valid, valid}
	case protocol.ResponseCalibrationReady:
		if m.state.CalibrationPhase != CalibrationAwaitingReady || m.state.CalibrationPoint != args[0] {
			return resp, fmt.Errorf("%w: ready for point %d while %s", ErrIllegalTransition,
				args[0], m.state.CalibrationPhase)
		}
		m.state.CalibrationPhase = CalibrationAwaitingTouch
	case protocol.ResponseCalibrationPoint:
		if m.state.CalibrationPhase != CalibrationAwaitingTouch || m.state.CalibrationPoint != args[0] {
			return resp, fmt.Errorf("%w: point %d confirmed while %s", ErrIllegalTransition,
				args[0], m.state.CalibrationPhase)
		}
		point := args[0]
		m.confirmed[point-1] = true
		cal := m.state.Calibration
		cal.Points[point-1] = args[1]
		cal.Valid = cal.Valid || (m.confirmed[0] && m.confirmed[1])
		m.state.Calibration = cal
		m.state.CalibrationPhase = CalibrationIdle
		m.state.CalibrationPoint = 0
	case protocol.ResponseUnknown, protocol.ResponseSensorMode:
	}
	return resp, nil
}
