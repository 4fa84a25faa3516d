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
	"strings"

	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
)

// ErrTransportClosed is returned by MockTransport after Close.
var ErrTransportClosed = errors.New("mock transport closed")

// MockTransport is a scripted board link. Inbound data is queued with
// Inject; Replies lets the mock answer commands like a real board would.
type MockTransport struct {
	// Replies maps a command, without its terminator, to the data the
	// board sends back after it.
	Replies    map[string]string
	SendError  error
	ReceiveErr error
	inbound    [][]byte
	sent       []string
	mu         syncutil.RWMutex
	closed     bool
}

// NewMockTransport returns an open transport with no replies.
func NewMockTransport() *MockTransport {
	return &MockTransport{Replies: make(map[string]string)}
}

// Reply registers the data sent back after cmd.
func (m *MockTransport) Reply(cmd, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Replies[cmd] = data
}

// Inject queues data for a later Receive. Each call is returned by its own
// Receive, so tests control chunking.
func (m *MockTransport) Inject(data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound = append(m.inbound, []byte(data))
}

// SetReceiveError makes every following Receive fail with err.
func (m *MockTransport) SetReceiveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReceiveErr = err
}

// SetSendError makes every following Send fail with err.
func (m *MockTransport) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendError = err
}

// Send records data and queues the scripted reply, if any.
func (m *MockTransport) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrTransportClosed
	}
	if m.SendError != nil {
		return m.SendError
	}
	cmd := string(data)
	m.sent = append(m.sent, cmd)
	if reply, ok := m.Replies[strings.TrimSuffix(cmd, "\r")]; ok && reply != "" {
		m.inbound = append(m.inbound, []byte(reply))
	}
	return nil
}

// Receive returns the next queued chunk, or no data.
func (m *MockTransport) Receive() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrTransportClosed
	}
	if m.ReceiveErr != nil {
		return nil, m.ReceiveErr
	}
	if len(m.inbound) == 0 {
		return nil, nil
	}
	data := m.inbound[0]
	m.inbound = m.inbound[1:]
	return data, nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Sent returns every command written so far, terminators included.
func (m *MockTransport) Sent() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

// IsClosed reports whether Close was called.
func (m *MockTransport) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
