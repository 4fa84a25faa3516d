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
	"errors"
	"time"

	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
)

// MockSerialPort is an in-memory serial port. Reads drain ReadData, then
// return nothing after a short delay the way a port with a read timeout
// does.
type MockSerialPort struct {
	ReadError   error
	WriteError  error
	CloseError  error
	TimeoutErr  error
	ReadFunc    func(p []byte) (n int, err error)
	ReadData    []byte
	written     []byte
	ReadIndex   int
	ReadTimeout time.Duration
	CloseCount  int
	Closed      bool
	mu          syncutil.RWMutex
}

func NewMockSerialPort() *MockSerialPort {
	return &MockSerialPort{}
}

func (m *MockSerialPort) Read(p []byte) (n int, err error) {
	m.mu.RLock()
	closed := m.Closed
	m.mu.RUnlock()

	if closed {
		return 0, errors.New("port closed")
	}

	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}

	if m.ReadError != nil {
		return 0, m.ReadError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadIndex >= len(m.ReadData) {
		time.Sleep(time.Millisecond)
		return 0, nil
	}

	n = copy(p, m.ReadData[m.ReadIndex:])
	m.ReadIndex += n
	return n, nil
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Closed {
		return 0, errors.New("port closed")
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.written = append(m.written, p...)
	return len(p), nil
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.CloseCount++
	closeError := m.CloseError
	m.mu.Unlock()
	return closeError
}

func (m *MockSerialPort) SetReadTimeout(t time.Duration) error {
	m.mu.Lock()
	m.ReadTimeout = t
	m.mu.Unlock()
	return m.TimeoutErr
}

// Written returns everything written so far.
func (m *MockSerialPort) Written() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return string(m.written)
}

func (m *MockSerialPort) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Closed
}

// Closes returns how many times Close was called.
func (m *MockSerialPort) Closes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CloseCount
}
