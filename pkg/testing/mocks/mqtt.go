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
	"time"

	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockMQTTClient implements mqtt.Client and records publishes.
type MockMQTTClient struct {
	ConnectError   error
	PublishError   error
	published      []PublishedMessage
	DisconnectCall int
	connected      bool
	mu             syncutil.Mutex
}

// PublishedMessage is one recorded Publish call.
type PublishedMessage struct {
	Payload  any
	Topic    string
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{}
}

// Published returns a copy of the recorded publishes.
func (m *MockMQTTClient) Published() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.published...)
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) IsConnectionOpen() bool {
	return m.IsConnected()
}

func (m *MockMQTTClient) Connect() mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ConnectError != nil {
		return &MockToken{Err: m.ConnectError, Complete: true}
	}
	m.connected = true
	return &MockToken{Complete: true}
}

func (m *MockMQTTClient) Disconnect(_ uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.DisconnectCall++
}

func (m *MockMQTTClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishError != nil {
		return &MockToken{Err: m.PublishError, Complete: true}
	}
	m.published = append(m.published, PublishedMessage{
		Topic:    topic,
		QoS:      qos,
		Retained: retained,
		Payload:  payload,
	})
	return &MockToken{Complete: true}
}

func (*MockMQTTClient) Subscribe(_ string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	return &MockToken{Complete: true}
}

func (*MockMQTTClient) SubscribeMultiple(_ map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	return &MockToken{Complete: true}
}

func (*MockMQTTClient) Unsubscribe(_ ...string) mqtt.Token {
	return &MockToken{Complete: true}
}

func (*MockMQTTClient) AddRoute(_ string, _ mqtt.MessageHandler) {}

func (*MockMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// MockToken implements mqtt.Token. Complete false simulates a token that
// never finishes within its timeout.
type MockToken struct {
	Err      error
	Complete bool
}

func (*MockToken) Wait() bool {
	return true
}

func (t *MockToken) WaitTimeout(_ time.Duration) bool {
	return t.Complete
}

func (*MockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *MockToken) Error() error {
	return t.Err
}
