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

package outputs

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MeasureBoard/measureboard-core/pkg/board"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	mqttClientIDPrefix    = "measureboard-"
	mqttConnectTimeout    = 10 * time.Second
	mqttPublishTimeout    = 5 * time.Second
	mqttDisconnectQuiesce = 250
)

// ErrMQTTNotConnected is returned when publishing before Start.
var ErrMQTTNotConnected = errors.New("mqtt client not connected")

// MQTTOptions configure the MQTT sink.
type MQTTOptions struct {
	Broker   string
	Topic    string
	Username string
	Password string
	QoS      byte
	Retained bool
}

// brokerURL turns "host:port", "mqtt://host:port" or "mqtts://host:port"
// into a paho broker URL. The second result reports whether TLS is used.
func brokerURL(broker string) (string, bool) {
	scheme, rest, found := strings.Cut(broker, "://")
	if !found {
		return "tcp://" + broker, false
	}
	switch scheme {
	case "mqtts", "ssl", "tls":
		return "ssl://" + rest, true
	case "ws", "wss":
		return broker, scheme == "wss"
	default:
		return "tcp://" + rest, false
	}
}

// newClientOptions builds the paho options for a broker address.
func newClientOptions(opts MQTTOptions) *mqtt.ClientOptions {
	url, useTLS := brokerURL(opts.Broker)

	co := mqtt.NewClientOptions()
	co.AddBroker(url)
	co.SetClientID(mqttClientIDPrefix + uuid.New().String()[:8])
	co.SetAutoReconnect(true)
	co.SetConnectRetry(false)
	co.SetConnectTimeout(mqttConnectTimeout)

	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	if useTLS {
		co.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	co.OnConnect = func(_ mqtt.Client) {
		log.Info().Msgf("mqtt sink: connected to %s", opts.Broker)
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt sink: connection lost")
	}
	return co
}

// MQTT publishes each output as a JSON object to a topic.
type MQTT struct {
	client mqtt.Client
	opts   MQTTOptions
}

func NewMQTT(opts MQTTOptions) *MQTT {
	return &MQTT{opts: opts}
}

// Start connects to the broker.
func (m *MQTT) Start() error {
	if m.client == nil {
		m.client = mqtt.NewClient(newClientOptions(m.opts))
	}
	token := m.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("timed out connecting to MQTT broker %s", m.opts.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	log.Info().Msgf("mqtt sink: publishing to %s (topic: %s)", m.opts.Broker, m.opts.Topic)
	return nil
}

func (m *MQTT) Deliver(out board.Output) error {
	if m.client == nil || !m.client.IsConnected() {
		return ErrMQTTNotConnected
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	token := m.client.Publish(m.opts.Topic, m.opts.QoS, m.opts.Retained, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("timed out publishing to %s", m.opts.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish output: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	if m.client != nil && m.client.IsConnected() {
		log.Debug().Msg("mqtt sink: disconnecting")
		m.client.Disconnect(mqttDisconnectQuiesce)
	}
	return nil
}
