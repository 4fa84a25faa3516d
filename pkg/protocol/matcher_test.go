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

func TestLiteralExpectation(t *testing.T) {
	t.Parallel()

	exp := Literal("%di:3#\r")
	assert.False(t, exp.IsPattern())
	assert.True(t, exp.Matches("%di:3#\r"))
	assert.False(t, exp.Matches("%di:3#"), "missing CR")
	assert.False(t, exp.Matches("%DI:3#\r"), "case sensitive")
	assert.False(t, exp.Matches(" %di:3#\r"), "whitespace sensitive")
	assert.False(t, exp.Matches("x%di:3#\r"), "no substring match")
}

func TestPatternExpectation(t *testing.T) {
	t.Parallel()

	exp, err := Pattern(PatternBacklight)
	require.NoError(t, err)
	assert.True(t, exp.IsPattern())
	assert.True(t, exp.Matches("%bl:75#\r"))
	assert.True(t, exp.Matches("noise %bl:5# more"), "found anywhere in the frame")
	assert.False(t, exp.Matches("%bl:#\r"))

	_, err = Pattern("(")
	require.Error(t, err)
}

func TestExpectationResolvesOnce(t *testing.T) {
	t.Parallel()

	exp := Literal("a")
	exp.Resolve("a", nil)
	exp.Resolve("b", errors.New("late"))

	select {
	case <-exp.Done():
	default:
		t.Fatal("expected expectation to be resolved")
	}
	frame, err := exp.Result()
	require.NoError(t, err)
	assert.Equal(t, "a", frame)
}

func TestMatcherLiteral(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	exp := Literal("%di:3#\r")
	m.Expect(exp)
	m.Offer("%di:3#\r")

	results := m.Match()
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Same(t, exp, results[0].Expectation)
	assert.Equal(t, "%di:3#\r", results[0].Frame)
}

func TestMatcherLiteralMismatchDropsBoth(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	m.Expect(Literal("%di:3#\r"))
	next := Literal("%sdm:1#\r")
	m.Expect(next)
	m.Offer("%di:2#\r")

	results := m.Match()
	require.Len(t, results, 1)
	var mismatch *MismatchError
	require.ErrorAs(t, results[0].Err, &mismatch)
	assert.Equal(t, "%di:2#\r", mismatch.Frame)

	frames, exps := m.Pending()
	assert.Equal(t, 0, frames)
	assert.Equal(t, 1, exps, "only the head expectation is dropped")

	// no resync: the next frame is tested against the next expectation
	m.Offer("%sdm:1#\r")
	results = m.Match()
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Same(t, next, results[0].Expectation)
}

func TestMatcherPatternFIFONotSearchAhead(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	exp := MustPattern(PatternBacklight)
	m.Expect(exp)
	// the first frame does not contain the pattern; a later frame does, but
	// the matcher only ever tests the head pair
	m.Offer("%sd:50#\r")
	m.Offer("%bl:75#\r")

	results := m.Match()
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)

	frames, exps := m.Pending()
	assert.Equal(t, 1, frames)
	assert.Equal(t, 0, exps)
}

func TestMatcherPatternMatchesFirstFrameOnly(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	first := MustPattern(PatternBacklight)
	second := MustPattern(PatternBacklight)
	m.Expect(first)
	m.Expect(second)
	m.Offer("%bl:75#\r")
	m.Offer("%bl:95#\r")

	results := m.Match()
	require.Len(t, results, 2)
	assert.Same(t, first, results[0].Expectation)
	assert.Equal(t, "%bl:75#\r", results[0].Frame)
	assert.Same(t, second, results[1].Expectation)
	assert.Equal(t, "%bl:95#\r", results[1].Frame)
}

func TestMatcherWaitsForBothQueues(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	m.Offer("%bl:75#\r")
	assert.Empty(t, m.Match())

	m2 := NewMatcher()
	m2.Expect(Literal("x"))
	assert.Empty(t, m2.Match())
}

func TestMatcherCancel(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	a := Literal("a")
	b := Literal("b")
	c := Literal("c")
	m.Expect(a)
	m.Expect(b)
	m.Expect(c)

	assert.True(t, m.Cancel(b))
	assert.False(t, m.Cancel(b))
	_, err := b.Result()
	require.ErrorIs(t, err, ErrCancelled)

	m.Offer("a")
	m.Offer("c")
	results := m.Match()
	require.Len(t, results, 2)
	assert.Same(t, a, results[0].Expectation)
	assert.Same(t, c, results[1].Expectation)
	require.NoError(t, results[1].Err)
}

func TestMatcherReset(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	exp := Literal("a")
	m.Expect(exp)
	m.Offer("zzz")
	m.Reset(nil)

	frames, exps := m.Pending()
	assert.Equal(t, 0, frames)
	assert.Equal(t, 0, exps)
	_, err := exp.Result()
	require.ErrorIs(t, err, ErrCleared)

	stopped := errors.New("stopped")
	exp2 := Literal("b")
	m.Expect(exp2)
	m.Reset(stopped)
	_, err = exp2.Result()
	require.ErrorIs(t, err, stopped)
}

func TestMatcherResetFramesKeepsExpectations(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	m.Expect(Literal("a"))
	m.Offer("stale")
	m.ResetFrames()

	frames, exps := m.Pending()
	assert.Equal(t, 0, frames)
	assert.Equal(t, 1, exps)
}

func TestMatcherImplementsCorrelator(t *testing.T) {
	t.Parallel()

	var c Correlator = NewMatcher()
	assert.NotNil(t, c)
}
