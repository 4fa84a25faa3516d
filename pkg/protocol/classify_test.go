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

package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		frame   string
		symbol  string
		kind    EventKind
		value   int
		keyCode int
	}{
		{name: "position", frame: "%P630#\r", kind: EventPosition, value: 630},
		{name: "negative position", frame: "%P-12#\r", kind: EventPosition, value: -12},
		{name: "position without CR", frame: "%P5#", kind: EventPosition, value: 5},
		{name: "swipe", frame: "%S10#\r", kind: EventSwipe, value: 10},
		{name: "digit key", frame: "%K07#\r", kind: EventKey, keyCode: 7, symbol: "7"},
		{name: "enter key", frame: "%K10#\r", kind: EventKey, keyCode: 10, symbol: "enter"},
		{name: "stylus key", frame: "%K26#\r", kind: EventKey, keyCode: 26, symbol: KeyStylus},
		{name: "last key", frame: "%K31#\r", kind: EventKey, keyCode: 31, symbol: "home"},
		{name: "ack", frame: "%di:3#\r", kind: EventUnclassified},
		{name: "mode ack", frame: "%length mode activated#\r", kind: EventUnclassified},
		{name: "lowercase s is not swipe", frame: "%sd:50#\r", kind: EventUnclassified},
		{name: "position tag without terminator", frame: "%P630\r", kind: EventUnclassified},
		{name: "blank", frame: "\n", kind: EventUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ev, err := Classify(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.frame, ev.Raw)
			switch tt.kind {
			case EventPosition, EventSwipe:
				assert.Equal(t, tt.value, ev.Value)
			case EventKey:
				assert.Equal(t, tt.keyCode, ev.Key.Code)
				assert.Equal(t, tt.symbol, ev.Key.Symbol)
			case EventUnclassified:
			}
		})
	}
}

func TestClassifyDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame string
		kind  EventKind
	}{
		{name: "non-numeric position", frame: "%P6a0#\r", kind: EventPosition},
		{name: "empty position", frame: "%P#\r", kind: EventPosition},
		{name: "overflowing position", frame: "%P99999999999999999999#\r", kind: EventPosition},
		{name: "non-numeric swipe", frame: "%Sx#\r", kind: EventSwipe},
		{name: "one digit key", frame: "%K7#\r", kind: EventKey},
		{name: "three digit key", frame: "%K007#\r", kind: EventKey},
		{name: "key out of table", frame: "%K32#\r", kind: EventKey},
		{name: "letter key", frame: "%Kab#\r", kind: EventKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Classify(tt.frame)
			require.Error(t, err)

			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			assert.Equal(t, tt.kind, decErr.Kind)
			assert.Equal(t, tt.frame, decErr.Frame)
			assert.True(t, errors.Is(err, ErrMalformedPayload))
		})
	}
}

func TestKeyTableHas32Entries(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for code, sym := range KeyTable {
		assert.NotEmpty(t, sym, "code %02d", code)
		assert.False(t, seen[sym], "duplicate symbol %q", sym)
		seen[sym] = true
	}
	assert.Len(t, KeyTable, 32)
}

func TestIsBlankAndRebootNotice(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBlank("\n"))
	assert.True(t, IsBlank("\r"))
	assert.True(t, IsBlank("#\r"))
	assert.False(t, IsBlank("%di:3#\r"))

	assert.True(t, IsRebootNotice("junk"+NoticeBoardReset))
	assert.True(t, IsRebootNotice(NoticeWatchdog))
	assert.False(t, IsRebootNotice("%bl:50#\r"))
}

func TestIdentifyResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		frame string
		args  []string
		kind  ResponseKind
	}{
		{frame: "%di:3#\r", kind: ResponseInterfaceMode, args: []string{"3"}},
		{frame: "%numeric mode activated#\r", kind: ResponseSensorMode, args: []string{"numeric"}},
		{frame: "%sdm:1#\r", kind: ResponseStylusMessage, args: []string{"1"}},
		{frame: "%sd:50#\r", kind: ResponseSettlingDelay, args: []string{"50"}},
		{frame: "%md:3#\r", kind: ResponseMaxDeviation, args: []string{"3"}},
		{frame: "%rc:5#\r", kind: ResponseReadingCount, args: []string{"5"}},
		{frame: "%bl:75#\r", kind: ResponseBacklight, args: []string{"75"}},
		{frame: "%ba:0#\r", kind: ResponseBacklightAuto, args: []string{"0"}},
		{frame: "%bs:4#\r", kind: ResponseBacklightSensitivity, args: []string{"4"}},
		{frame: "%cs:1,120,-40#\r", kind: ResponseCalibrationState, args: []string{"1", "120", "-40"}},
		{frame: "%bat:88#\r", kind: ResponseBattery, args: []string{"88"}},
		{frame: "%cr:2#\r", kind: ResponseCalibrationReady, args: []string{"2"}},
		{frame: "%cp:1,17#\r", kind: ResponseCalibrationPoint, args: []string{"1", "17"}},
		{frame: "hello\r", kind: ResponseUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			t.Parallel()

			resp := IdentifyResponse(tt.frame)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.Equal(t, tt.args, resp.Args)
		})
	}
}

func TestResponseInt(t *testing.T) {
	t.Parallel()

	resp := IdentifyResponse("%cs:1,120,-40#\r")
	n, err := resp.Int(2)
	require.NoError(t, err)
	assert.Equal(t, -40, n)

	_, err = resp.Int(3)
	require.Error(t, err)
}

func TestSensorMode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "length", ModeLength.String())
	assert.Equal(t, ModeAlpha, ModeLength.Next())
	assert.Equal(t, ModeLength, ModeNumeric.Next())
	assert.Contains(t, SensorMode(9).String(), "unknown")

	m, err := ParseSensorMode("shortcut")
	require.NoError(t, err)
	assert.Equal(t, ModeShortcut, m)

	_, err = ParseSensorMode("bogus")
	require.Error(t, err)
}

func TestCommandStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "%di:3#", CmdInterfaceMode(InterfaceModeASCII))
	assert.Equal(t, "%di:3#\r", AckInterfaceMode(InterfaceModeASCII))
	assert.Equal(t, "%sm:1#", CmdSensorMode(ModeAlpha))
	assert.Equal(t, "%alpha mode activated#\r", AckSensorMode(ModeAlpha))
	assert.Equal(t, "%sdm:0#", CmdStylusMessage(false))
	assert.Equal(t, "%sdm:1#\r", AckStylusMessage(true))
	assert.Equal(t, "%bl:75#", CmdBacklight(75))
	assert.Equal(t, "%cal:2#", CmdCalibrate(2))
	assert.Equal(t, "%cr:2#\r", AckCalibrationReady(2))
}
