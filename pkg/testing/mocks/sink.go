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

package mocks

import (
	"fmt"

	"github.com/MeasureBoard/measureboard-core/pkg/board"
	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
	"github.com/stretchr/testify/mock"
)

// MockSink is a testify mock of board.Sink.
type MockSink struct {
	mock.Mock
}

// Deliver records the call.
func (m *MockSink) Deliver(out board.Output) error {
	args := m.Called(out)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}

// RecordingSink keeps every delivered output.
type RecordingSink struct {
	outputs []board.Output
	mu      syncutil.RWMutex
}

// NewRecordingSink returns an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Deliver appends out.
func (r *RecordingSink) Deliver(out board.Output) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, out)
	return nil
}

// Outputs returns a copy of everything delivered so far.
func (r *RecordingSink) Outputs() []board.Output {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]board.Output, len(r.outputs))
	copy(out, r.outputs)
	return out
}
