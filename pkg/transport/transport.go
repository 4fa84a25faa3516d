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

// Package transport opens the byte link to a board. A board is reached
// either through a serial device (a bound /dev/rfcomm node, a USB adapter,
// a COM port) or, on Linux, directly over an RFCOMM socket by Bluetooth
// address.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind classifies transport failures. Only KindTimeout is recoverable;
// every other kind closes the link.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindPortUnavailable
	KindDeviceNotFound
	KindAdapterOff
	KindConnectionBroken
	KindDeviceUnavailable
	KindChannelClosed
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindTimeout:           "timeout",
	KindPortUnavailable:   "port-unavailable",
	KindDeviceNotFound:    "device-not-found",
	KindAdapterOff:        "adapter-off",
	KindConnectionBroken:  "connection-broken",
	KindDeviceUnavailable: "device-unavailable",
	KindChannelClosed:     "channel-closed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

var (
	// ErrClosed is wrapped by errors from a link that was already closed.
	ErrClosed = errors.New("link closed")
	// ErrAdapterOff is wrapped when the Bluetooth adapter is powered off.
	ErrAdapterOff = errors.New("bluetooth adapter is powered off")
)

// Error is a classified transport failure.
type Error struct {
	Err  error
	Op   string
	Kind Kind
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a recoverable timeout.
func (e *Error) Timeout() bool {
	return e.Kind == KindTimeout
}

// KindOf returns the kind of a transport error, or KindUnknown.
func KindOf(err error) Kind {
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Kind
	}
	return KindUnknown
}

const (
	DefaultBaudRate     = 115200
	DefaultReadTimeout  = 100 * time.Millisecond
	DefaultWriteTimeout = time.Second
	DefaultDialTimeout  = 10 * time.Second
	DefaultChannel      = 1
	DefaultAdapter      = "hci0"
)

// Options configure Dial. Zero values select the defaults.
type Options struct {
	SerialFactory SerialPortFactory
	Adapter       string
	BaudRate      int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	Channel       uint8
	// CheckAdapter asks BlueZ whether the adapter is powered before an
	// RFCOMM dial so a switched-off adapter is reported as such.
	CheckAdapter bool
}

func (o Options) withDefaults() Options {
	if o.SerialFactory == nil {
		o.SerialFactory = DefaultSerialPortFactory
	}
	if o.Adapter == "" {
		o.Adapter = DefaultAdapter
	}
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Channel == 0 {
		o.Channel = DefaultChannel
	}
	return o
}

// ParseAddress reports whether identifier is a Bluetooth address.
func ParseAddress(identifier string) (net.HardwareAddr, bool) {
	mac, err := net.ParseMAC(identifier)
	if err != nil || len(mac) != 6 {
		return nil, false
	}
	return mac, true
}

// Dial connects to a board. A Bluetooth address dials an RFCOMM socket;
// anything else is opened as a serial device path.
func Dial(ctx context.Context, identifier string, opts Options) (*Link, error) {
	opts = opts.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	if mac, ok := ParseAddress(identifier); ok {
		if opts.CheckAdapter {
			if err := checkAdapter(ctx, opts.Adapter); err != nil {
				return nil, err
			}
		}
		return dialRFCOMM(ctx, mac, opts)
	}
	return openSerial(ctx, identifier, opts)
}

// Port is the raw stream a Link runs on. A Read that times out returns no
// data and no error.
type Port interface {
	io.ReadWriteCloser
}

// Link is an open connection to a board. Send and Receive may be called
// from different goroutines. Any failure other than a timeout closes the
// link.
type Link struct {
	port      Port
	classify  func(error) Kind
	closeErr  error
	name      string
	buf       []byte
	closeOnce sync.Once
	closed    atomic.Bool
}

func newLink(name string, port Port, classify func(error) Kind) *Link {
	return &Link{
		name:     name,
		port:     port,
		classify: classify,
		buf:      make([]byte, 256),
	}
}

// Name returns the identifier the link was opened with.
func (l *Link) Name() string {
	return l.name
}

// Send writes all of data.
func (l *Link) Send(data []byte) error {
	if l.closed.Load() {
		return &Error{Op: "send", Kind: KindChannelClosed, Err: ErrClosed}
	}
	for len(data) > 0 {
		n, err := l.port.Write(data)
		if err != nil {
			return l.failure("send", err)
		}
		data = data[n:]
	}
	return nil
}

// Receive returns whatever arrived within the read timeout, possibly
// nothing.
func (l *Link) Receive() ([]byte, error) {
	if l.closed.Load() {
		return nil, &Error{Op: "receive", Kind: KindChannelClosed, Err: ErrClosed}
	}
	n, err := l.port.Read(l.buf)
	if err != nil {
		return nil, l.failure("receive", err)
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	copy(out, l.buf[:n])
	return out, nil
}

// Close closes the underlying port. It is safe to call more than once.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.closeErr = l.port.Close()
	})
	return l.closeErr
}

// IsClosed reports whether the link has been closed.
func (l *Link) IsClosed() bool {
	return l.closed.Load()
}

func (l *Link) failure(op string, err error) error {
	if l.closed.Load() {
		return &Error{Op: op, Kind: KindChannelClosed, Err: err}
	}
	kind := l.classify(err)
	if kind != KindTimeout {
		log.Warn().Err(err).Str("link", l.name).Stringer("kind", kind).Msgf("%s failed, closing link", op)
		if cerr := l.Close(); cerr != nil {
			log.Debug().Err(cerr).Str("link", l.name).Msg("error closing link")
		}
	}
	return &Error{Op: op, Kind: kind, Err: err}
}
