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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MeasureBoard/measureboard-core/pkg/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepTransport records sends. The calibration tests drive the workers by
// hand so they never read from it.
type stepTransport struct {
	sent []string
	mu   sync.Mutex
}

func (s *stepTransport) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, string(data))
	return nil
}

func (*stepTransport) Receive() ([]byte, error) { return nil, nil }

func (*stepTransport) Close() error { return nil }

func (s *stepTransport) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

const (
	stepResponseTimeout    = time.Second
	stepCalibrationTimeout = 5 * time.Second
)

// newSteppedEngine returns an engine that accepts commands but has no
// workers running; tests call handleFrame and handleOnce themselves.
func newSteppedEngine(t *testing.T) (*Engine, *stepTransport, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	tr := &stepTransport{}
	e := New(tr, Options{
		Clock:              clock,
		ResponseTimeout:    stepResponseTimeout,
		CalibrationTimeout: stepCalibrationTimeout,
	})
	e.dispatcher.Open()
	return e, tr, clock
}

// sendReady waits for the calibrate command to be queued, sends it and
// confirms the ready acknowledgement.
func sendReady(ctx context.Context, t *testing.T, e *Engine, tr *stepTransport, clock *clockwork.FakeClock) {
	t.Helper()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.True(t, e.handleOnce())
	assert.Equal(t, []string{"%cal:1#\r"}, tr.Sent())

	e.handleFrame("%cr:1#\r")
	require.True(t, e.handleOnce())

	// touch expectation registered once the ready wait has returned
	require.Eventually(t, func() bool {
		_, exps := e.correlator.Pending()
		return exps == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, CalibrationAwaitingTouch, e.State().CalibrationPhase)
}

func TestCalibratePointConfirmed(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e, tr, clock := newSteppedEngine(t)
	errc := make(chan error, 1)
	go func() { errc <- e.CalibratePoint(ctx, 1) }()

	sendReady(ctx, t, e, tr, clock)

	e.handleFrame("%cp:1,42#\r")
	require.True(t, e.handleOnce())

	require.NoError(t, <-errc)
	st := e.State()
	assert.Equal(t, CalibrationIdle, st.CalibrationPhase)
	assert.Equal(t, 42, st.Calibration.Points[0])
}

func TestCalibratePointTimesOut(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e, tr, clock := newSteppedEngine(t)
	errc := make(chan error, 1)
	go func() { errc <- e.CalibratePoint(ctx, 1) }()

	sendReady(ctx, t, e, tr, clock)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(stepCalibrationTimeout)

	err := <-errc
	require.ErrorIs(t, err, ErrCalibrationFailed)
	require.ErrorIs(t, err, ErrResponseTimeout)

	st := e.State()
	assert.Equal(t, CalibrationIdle, st.CalibrationPhase)
	assert.Equal(t, Calibration{}, st.Calibration)

	_, exps := e.correlator.Pending()
	assert.Equal(t, 0, exps, "stale touch expectation withdrawn")

	// a late touch no longer pairs with anything
	e.handleFrame("%cp:1,42#\r")
	assert.False(t, e.handleOnce())
	assert.Equal(t, Calibration{}, e.State().Calibration)
}

func TestCalibrateTouchBeforeReadyFails(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e, _, clock := newSteppedEngine(t)
	errc := make(chan error, 1)
	go func() { errc <- e.CalibratePoint(ctx, 1) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.True(t, e.handleOnce())

	// the touch confirmation arrives where the ready ack was expected
	e.handleFrame("%cp:1,42#\r")
	require.True(t, e.handleOnce())

	err := <-errc
	require.ErrorIs(t, err, ErrCalibrationFailed)
	var mismatch *protocol.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, CalibrationIdle, e.State().CalibrationPhase)
	assert.Equal(t, uint64(1), e.Stats().Mismatches)
}

func TestCalibrateUnknownPoint(t *testing.T) {
	t.Parallel()

	e, tr, _ := newSteppedEngine(t)
	err := e.CalibratePoint(context.Background(), 3)
	require.ErrorIs(t, err, ErrCalibrationFailed)
	assert.Empty(t, tr.Sent())
	assert.Equal(t, 0, e.dispatcher.Len())
}

func TestKeyCommandSkippedDuringSequence(t *testing.T) {
	t.Parallel()

	e, _, _ := newSteppedEngine(t)
	_, err := e.machine.HandleConfirmed("%bl:50#\r")
	require.NoError(t, err)
	require.NoError(t, e.beginSequence(context.Background()))

	e.handleFrame("%K27#\r")
	assert.Equal(t, 0, e.dispatcher.Len(), "backlight key command skipped")
	assert.Equal(t, 50, e.State().BacklightLevel, "skipped step must not move the level")

	e.endSequence()
	e.handleFrame("%K27#\r")
	assert.Equal(t, 1, e.dispatcher.Len())
	assert.Equal(t, 75, e.State().BacklightLevel)
}

func TestKeyCommandRejectedKeepsBacklight(t *testing.T) {
	t.Parallel()

	e, _, _ := newSteppedEngine(t)
	_, err := e.machine.HandleConfirmed("%bl:50#\r")
	require.NoError(t, err)
	e.dispatcher.Close()

	e.handleFrame("%K28#\r")
	assert.Equal(t, 0, e.dispatcher.Len())
	assert.Equal(t, 50, e.State().BacklightLevel)
}
