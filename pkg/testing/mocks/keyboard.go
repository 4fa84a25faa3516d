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

import "github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"

// MockKeyboard stands in for a uinput virtual keyboard. It records the key
// codes typed through it and can be told to fail.
type MockKeyboard struct {
	PressErr error
	pressed  []int
	mu       syncutil.Mutex
	closed   bool
}

func NewMockKeyboard() *MockKeyboard {
	return &MockKeyboard{}
}

func (m *MockKeyboard) KeyPress(key int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PressErr != nil {
		return m.PressErr
	}
	m.pressed = append(m.pressed, key)
	return nil
}

// KeyDown and KeyUp are unused by the keyboard output; a press is recorded
// on the way down only.
func (m *MockKeyboard) KeyDown(key int) error {
	return m.KeyPress(key)
}

func (*MockKeyboard) KeyUp(int) error {
	return nil
}

func (*MockKeyboard) FetchSyspath() (string, error) {
	return "/sys/devices/virtual/input/measureboard", nil
}

func (m *MockKeyboard) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Pressed returns the key codes typed so far.
func (m *MockKeyboard) Pressed() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.pressed...)
}

func (m *MockKeyboard) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
