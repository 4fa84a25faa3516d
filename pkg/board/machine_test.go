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
	"testing"

	"github.com/MeasureBoard/measureboard-core/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func position(v int) protocol.Event {
	return protocol.Event{Kind: protocol.EventPosition, Value: v}
}

func swipe(v int) protocol.Event {
	return protocol.Event{Kind: protocol.EventSwipe, Value: v}
}

func key(t testing.TB, sym string) protocol.Event {
	t.Helper()
	for code, s := range protocol.KeyTable {
		if s == sym {
			return protocol.Event{Kind: protocol.EventKey, Key: protocol.Key{Code: code, Symbol: s}}
		}
	}
	t.Fatalf("no key %q in table", sym)
	return protocol.Event{}
}

func digitLayoutSettings() Settings {
	s := DefaultSettings()
	s.Layouts[ZoneBottom] = Layout{
		Zero:      0,
		CellWidth: 25,
		Symbols:   []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"},
	}
	return s
}

func TestMachinePenMeasurement(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())
	act := m.HandleEvent(position(630))
	require.NotNil(t, act.Output)
	assert.Equal(t, Measurement(624), *act.Output)
	assert.Empty(t, act.Commands)
}

func TestMachineUpdateSettingsKeepsState(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())
	m.HandleEvent(key(t, protocol.KeyStylus))

	s := DefaultSettings()
	s.FingerOffset = 0
	m.UpdateSettings(s)
	assert.Equal(t, 0, m.Settings().FingerOffset)
	assert.Equal(t, StylusFinger, m.State().Stylus)

	act := m.HandleEvent(position(630))
	require.NotNil(t, act.Output)
	assert.Equal(t, Measurement(630), *act.Output)
}

func TestMachineStylusToggleChangesOffset(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())
	act := m.HandleEvent(key(t, protocol.KeyStylus))
	assert.Nil(t, act.Output)
	assert.Equal(t, StylusFinger, m.State().Stylus)

	act = m.HandleEvent(position(630))
	require.NotNil(t, act.Output)
	assert.Equal(t, Measurement(620), *act.Output)

	m.HandleEvent(key(t, protocol.KeyStylus))
	assert.Equal(t, StylusPen, m.State().Stylus)
}

func TestMachineSwipeSelectsBottomZone(t *testing.T) {
	t.Parallel()

	m := NewMachine(digitLayoutSettings())

	act := m.HandleEvent(swipe(10))
	assert.Nil(t, act.Output)
	assert.True(t, m.State().SwipeArmed)

	act = m.HandleEvent(position(500))
	assert.Nil(t, act.Output, "zone-select position is not a reading")
	st := m.State()
	assert.Equal(t, ZoneBottom, st.Zone)
	assert.False(t, st.SwipeArmed)

	act = m.HandleEvent(position(50))
	require.NotNil(t, act.Output)
	assert.Equal(t, Symbol("2"), *act.Output)
}

func TestMachineZoneBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pos  int
		zone Zone
	}{
		{name: "high band", pos: 700, zone: ZoneMeasuring},
		{name: "measuring lower bound", pos: 600, zone: ZoneMeasuring},
		{name: "mid band", pos: 599, zone: ZoneBottom},
		{name: "bottom lower bound", pos: 300, zone: ZoneBottom},
		{name: "low band", pos: 299, zone: ZoneTop},
		{name: "negative", pos: -5, zone: ZoneTop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := NewMachine(DefaultSettings())
			m.HandleEvent(swipe(10))
			m.HandleEvent(position(tt.pos))
			assert.Equal(t, tt.zone, m.State().Zone)
		})
	}
}

func TestMachineSwipeAtThresholdDoesNotArm(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())
	m.HandleEvent(swipe(5))
	assert.False(t, m.State().SwipeArmed)

	act := m.HandleEvent(position(630))
	require.NotNil(t, act.Output)
	assert.Equal(t, Measurement(624), *act.Output)
}

func TestMachineLayoutDeadZone(t *testing.T) {
	t.Parallel()

	m := NewMachine(digitLayoutSettings())
	m.HandleEvent(swipe(10))
	m.HandleEvent(position(400))
	require.Equal(t, ZoneBottom, m.State().Zone)

	assert.Nil(t, m.HandleEvent(position(250)).Output, "index 10 is past the last key")
	assert.Nil(t, m.HandleEvent(position(-1)).Output, "before the first key")

	act := m.HandleEvent(position(249))
	require.NotNil(t, act.Output)
	assert.Equal(t, Symbol("9"), *act.Output)
}

func TestMachineBacklightSteps(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())
	_, err := m.HandleConfirmed("%bl:50#\r")
	require.NoError(t, err)

	var levels []int
	var cmds []string
	for range 3 {
		act := m.HandleEvent(key(t, protocol.KeyBacklightUp))
		assert.Nil(t, act.Output)
		require.Len(t, act.Commands, 1)
		require.NotNil(t, act.Commands[0].Expect)
		levels = append(levels, m.State().BacklightLevel)
		cmds = append(cmds, act.Commands[0].Text)
	}

	assert.Equal(t, []int{75, 95, 95}, levels)
	assert.Equal(t, []string{"%bl:75#", "%bl:95#", "%bl:95#"}, cmds)
}

func TestMachineBacklightDownClamps(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())
	_, err := m.HandleConfirmed("%bl:30#\r")
	require.NoError(t, err)

	m.HandleEvent(key(t, protocol.KeyBacklightDown))
	assert.Equal(t, 5, m.State().BacklightLevel)
	act := m.HandleEvent(key(t, protocol.KeyBacklightDown))
	assert.Equal(t, 0, m.State().BacklightLevel)
	assert.Equal(t, "%bl:0#", act.Commands[0].Text)
}

func TestMachineBacklightRollback(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())
	_, err := m.HandleConfirmed("%bl:50#\r")
	require.NoError(t, err)

	act := m.HandleEvent(key(t, protocol.KeyBacklightUp))
	require.NotNil(t, act.rollback)
	assert.Equal(t, 75, m.State().BacklightLevel)
	act.rollback()
	assert.Equal(t, 50, m.State().BacklightLevel)

	// a level confirmed by the board in the meantime wins
	act = m.HandleEvent(key(t, protocol.KeyBacklightUp))
	_, err = m.HandleConfirmed("%bl:60#\r")
	require.NoError(t, err)
	act.rollback()
	assert.Equal(t, 60, m.State().BacklightLevel)
}

func TestMachineMute(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())
	act := m.HandleEvent(key(t, protocol.KeyMute))
	assert.Nil(t, act.Output)
	assert.True(t, m.State().Muted)

	assert.Nil(t, m.HandleEvent(position(630)).Output)
	assert.Nil(t, m.HandleEvent(key(t, "7")).Output)

	m.HandleEvent(key(t, protocol.KeyMute))
	assert.NotNil(t, m.HandleEvent(position(630)).Output)
}

func TestMachineModeKey(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())
	act := m.HandleEvent(key(t, protocol.KeyMode))
	assert.Nil(t, act.Output)
	require.Len(t, act.Commands, 1)
	assert.Equal(t, "%sm:1#", act.Commands[0].Text)
	assert.True(t, act.Commands[0].Expect.Matches("%alpha mode activated#\r"))
	assert.Equal(t, protocol.ModeLength, m.State().SensorMode, "mode changes on confirmation")

	_, err := m.HandleConfirmed("%alpha mode activated#\r")
	require.NoError(t, err)
	assert.Equal(t, protocol.ModeAlpha, m.State().SensorMode)
}

func TestMachinePlainKeyIsOutput(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())
	act := m.HandleEvent(key(t, "enter"))
	require.NotNil(t, act.Output)
	assert.Equal(t, Symbol("enter"), *act.Output)
}

func TestMachineConfirmedSettings(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())
	for _, frame := range []string{
		"%di:3#\r", "%sdm:1#\r", "%sd:120#\r", "%md:4#\r", "%rc:6#\r",
		"%ba:1#\r", "%bs:7#\r", "%bat:64#\r", "%numeric mode activated#\r",
	} {
		_, err := m.HandleConfirmed(frame)
		require.NoError(t, err, frame)
	}

	st := m.State()
	assert.Equal(t, 3, st.InterfaceMode)
	assert.True(t, st.StylusMessage)
	assert.Equal(t, 120, st.SettlingDelay)
	assert.Equal(t, 4, st.MaxDeviation)
	assert.Equal(t, 6, st.ReadingCount)
	assert.True(t, st.BacklightAuto)
	assert.Equal(t, 7, st.BacklightSensitivity)
	assert.Equal(t, 64, st.Battery)
	assert.Equal(t, protocol.ModeNumeric, st.SensorMode)
}

func TestMachineUnknownResponse(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())
	_, err := m.HandleConfirmed("%zz:1#\r")
	require.ErrorIs(t, err, ErrUnknownResponse)
}

func TestMachineCalibrationSequence(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())

	require.NoError(t, m.BeginCalibration(1))
	assert.Equal(t, CalibrationAwaitingReady, m.State().CalibrationPhase)

	_, err := m.HandleConfirmed("%cp:1,17#\r")
	require.ErrorIs(t, err, ErrIllegalTransition, "touch before ready")

	_, err = m.HandleConfirmed("%cr:1#\r")
	require.NoError(t, err)
	assert.Equal(t, CalibrationAwaitingTouch, m.State().CalibrationPhase)

	_, err = m.HandleConfirmed("%cp:1,17#\r")
	require.NoError(t, err)
	st := m.State()
	assert.Equal(t, CalibrationIdle, st.CalibrationPhase)
	assert.Equal(t, 17, st.Calibration.Points[0])
	assert.False(t, st.Calibration.Valid, "one point is not a calibration")

	require.NoError(t, m.BeginCalibration(2))
	_, err = m.HandleConfirmed("%cr:2#\r")
	require.NoError(t, err)
	_, err = m.HandleConfirmed("%cp:2,980#\r")
	require.NoError(t, err)

	assert.Equal(t, Calibration{Valid: true, Points: [2]int{17, 980}}, m.State().Calibration)
}

func TestMachineCalibrationIllegalTransitions(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())

	_, err := m.HandleConfirmed("%cp:1,17#\r")
	require.ErrorIs(t, err, ErrIllegalTransition, "touch with no calibration running")
	_, err = m.HandleConfirmed("%cr:1#\r")
	require.ErrorIs(t, err, ErrIllegalTransition, "ready with no calibration running")

	require.Error(t, m.BeginCalibration(3))

	require.NoError(t, m.BeginCalibration(1))
	require.ErrorIs(t, m.BeginCalibration(2), ErrIllegalTransition)

	_, err = m.HandleConfirmed("%cr:2#\r")
	require.ErrorIs(t, err, ErrIllegalTransition, "ready for the wrong point")

	m.AbortCalibration()
	assert.Equal(t, CalibrationIdle, m.State().CalibrationPhase)
	assert.Equal(t, Calibration{}, m.State().Calibration)
}

func TestMachineCalibrationStateReplacesWhole(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())
	_, err := m.HandleConfirmed("%cs:1,120,-40#\r")
	require.NoError(t, err)
	assert.Equal(t, Calibration{Valid: true, Points: [2]int{120, -40}}, m.State().Calibration)

	_, err = m.HandleConfirmed("%cs:0,0,0#\r")
	require.NoError(t, err)
	assert.Equal(t, Calibration{}, m.State().Calibration)
}

func TestMachineReboot(t *testing.T) {
	t.Parallel()

	m := NewMachine(DefaultSettings())
	require.NoError(t, m.BeginCalibration(1))
	m.HandleEvent(swipe(10))

	m.HandleReboot()
	st := m.State()
	assert.True(t, st.RebootSeen)
	assert.False(t, st.SwipeArmed)
	assert.Equal(t, CalibrationIdle, st.CalibrationPhase)

	m.MarkSynced()
	assert.False(t, m.State().RebootSeen)
}

// TestPropertyMeasuringOutputIsOffsetPosition verifies that unarmed
// positions in the measuring zone always come out shifted by the stylus
// offset.
func TestPropertyMeasuringOutputIsOffsetPosition(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		m := NewMachine(DefaultSettings())
		finger := rapid.Bool().Draw(t, "finger")
		if finger {
			m.HandleEvent(protocol.Event{
				Kind: protocol.EventKey,
				Key:  protocol.Key{Code: 26, Symbol: protocol.KeyStylus},
			})
		}
		pos := rapid.IntRange(-10000, 10000).Draw(t, "pos")

		act := m.HandleEvent(position(pos))
		if act.Output == nil {
			t.Fatalf("no output for position %d", pos)
		}
		want := pos - 6
		if finger {
			want = pos - 10
		}
		if *act.Output != Measurement(want) {
			t.Fatalf("got %v, want %d", *act.Output, want)
		}
	})
}

// TestPropertyLayoutLookup verifies the bucket arithmetic and that
// positions outside the layout never produce a symbol.
func TestPropertyLayoutLookup(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(t, "n")
		symbols := make([]string, n)
		for i := range symbols {
			symbols[i] = string(rune('a' + i%26))
		}
		l := Layout{
			Symbols:   symbols,
			Zero:      rapid.IntRange(-100, 100).Draw(t, "zero"),
			CellWidth: rapid.IntRange(1, 100).Draw(t, "width"),
		}
		pos := rapid.IntRange(-1000, 5000).Draw(t, "pos")

		sym, ok := l.Lookup(pos)
		end := l.Zero + n*l.CellWidth
		inside := pos >= l.Zero && pos < end
		if ok != inside {
			t.Fatalf("lookup(%d) ok=%v, want %v (zero=%d end=%d)", pos, ok, inside, l.Zero, end)
		}
		if ok && sym != symbols[(pos-l.Zero)/l.CellWidth] {
			t.Fatalf("lookup(%d) = %q", pos, sym)
		}
	})
}
