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
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/MeasureBoard/measureboard-core/pkg/helpers"
	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
)

var (
	// ErrCancelled resolves an expectation that was withdrawn before a
	// response arrived.
	ErrCancelled = errors.New("expectation cancelled")
	// ErrCleared resolves expectations dropped by a matcher reset.
	ErrCleared = errors.New("expectation cleared")
)

// Expectation describes the response a command should produce: either an
// exact frame or a pattern that must be found somewhere in the frame. It is
// resolved exactly once.
type Expectation struct {
	err     error
	re      *regexp.Regexp
	done    chan struct{}
	literal string
	frame   string
	once    sync.Once
}

// Literal expects a frame equal to s, byte for byte.
func Literal(s string) *Expectation {
	return &Expectation{literal: s, done: make(chan struct{})}
}

// Pattern expects a frame containing a match for the regular expression p.
func Pattern(p string) (*Expectation, error) {
	re, err := helpers.CachedCompile(p)
	if err != nil {
		return nil, fmt.Errorf("invalid expectation pattern: %w", err)
	}
	return &Expectation{re: re, done: make(chan struct{})}, nil
}

// MustPattern is like Pattern but panics on an invalid pattern. It is meant
// for the protocol's own constant patterns.
func MustPattern(p string) *Expectation {
	return &Expectation{re: helpers.CachedMustCompile(p), done: make(chan struct{})}
}

// IsPattern reports whether the expectation is a pattern rather than a
// literal.
func (e *Expectation) IsPattern() bool {
	return e.re != nil
}

// Matches tests a frame against the expectation.
func (e *Expectation) Matches(frame string) bool {
	if e.re != nil {
		return e.re.MatchString(frame)
	}
	return frame == e.literal
}

func (e *Expectation) String() string {
	if e.re != nil {
		return "pattern " + strconv.Quote(e.re.String())
	}
	return "literal " + strconv.Quote(e.literal)
}

// Resolve records the outcome. Only the first call has any effect.
func (e *Expectation) Resolve(frame string, err error) {
	e.once.Do(func() {
		e.frame = frame
		e.err = err
		close(e.done)
	})
}

// Done is closed once the expectation is resolved.
func (e *Expectation) Done() <-chan struct{} {
	return e.done
}

// Result returns the matched frame or the error the expectation was resolved
// with. It must only be called after Done is closed.
func (e *Expectation) Result() (string, error) {
	<-e.done
	return e.frame, e.err
}

// MismatchError reports a response frame that did not satisfy the oldest
// pending expectation.
type MismatchError struct {
	Frame    string
	Expected string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("response %q does not match expected %s", e.Frame, e.Expected)
}

// Result is the outcome of pairing one response frame with one expectation.
type Result struct {
	Err         error
	Expectation *Expectation
	Frame       string
}

// Correlator pairs unsolicited-looking response frames with the
// expectations of the commands that caused them. The board protocol has no
// command IDs, so the default Matcher relies purely on order; a revised
// protocol could substitute an ID-based Correlator.
type Correlator interface {
	Expect(exp *Expectation)
	Offer(frame string)
	Match() []Result
	Cancel(exp *Expectation) bool
	Reset(err error)
	ResetFrames()
	Pending() (frames, expectations int)
}

// Matcher is the FIFO Correlator. Each response frame is tested against the
// oldest expectation only; on a mismatch both are dropped and matching
// carries on with the next pair.
type Matcher struct {
	frames       []string
	expectations []*Expectation
	mu           syncutil.Mutex
}

// NewMatcher returns an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Expect queues an expectation behind all earlier ones.
func (m *Matcher) Expect(exp *Expectation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expectations = append(m.expectations, exp)
}

// Offer queues a response frame.
func (m *Matcher) Offer(frame string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, frame)
}

// Match pairs queued frames with queued expectations while both queues are
// non-empty. Expectations are not resolved here; the caller resolves them
// after acting on the result.
func (m *Matcher) Match() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	var results []Result
	for len(m.frames) > 0 && len(m.expectations) > 0 {
		frame := m.frames[0]
		exp := m.expectations[0]
		m.frames = m.frames[1:]
		m.expectations = m.expectations[1:]

		r := Result{Frame: frame, Expectation: exp}
		if !exp.Matches(frame) {
			r.Err = &MismatchError{Frame: frame, Expected: exp.String()}
		}
		results = append(results, r)
	}

	if len(m.frames) == 0 {
		m.frames = nil
	}
	if len(m.expectations) == 0 {
		m.expectations = nil
	}
	return results
}

// Cancel removes a still-queued expectation and resolves it with
// ErrCancelled. It returns false if the expectation was already consumed.
func (m *Matcher) Cancel(exp *Expectation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.expectations {
		if e == exp {
			m.expectations = append(m.expectations[:i:i], m.expectations[i+1:]...)
			exp.Resolve("", ErrCancelled)
			return true
		}
	}
	return false
}

// Reset drops both queues. Pending expectations are resolved with err, or
// ErrCleared if err is nil.
func (m *Matcher) Reset(err error) {
	if err == nil {
		err = ErrCleared
	}

	m.mu.Lock()
	exps := m.expectations
	m.expectations = nil
	m.frames = nil
	m.mu.Unlock()

	for _, e := range exps {
		e.Resolve("", err)
	}
}

// ResetFrames drops queued response frames only.
func (m *Matcher) ResetFrames() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
}

// Pending returns the lengths of both queues.
func (m *Matcher) Pending() (frames, expectations int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames), len(m.expectations)
}
