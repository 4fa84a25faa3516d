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

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"go.bug.st/serial"
)

// SerialPort is the subset of serial.Port the link needs.
type SerialPort interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// SerialPortFactory opens a serial port. Tests swap it for a mock.
type SerialPortFactory func(path string, mode *serial.Mode) (SerialPort, error)

// DefaultSerialPortFactory opens a real port through go.bug.st/serial.
func DefaultSerialPortFactory(path string, mode *serial.Mode) (SerialPort, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

type openResult struct {
	port SerialPort
	err  error
}

func openSerial(ctx context.Context, path string, opts Options) (*Link, error) {
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	// opening a bound rfcomm node blocks until the remote side answers
	results := make(chan openResult, 1)
	go func() {
		port, err := opts.SerialFactory(path, mode)
		results <- openResult{port: port, err: err}
	}()

	var res openResult
	select {
	case res = <-results:
	case <-ctx.Done():
		go func() {
			if late := <-results; late.port != nil {
				_ = late.port.Close()
			}
		}()
		return nil, &Error{Op: "dial", Kind: KindTimeout, Err: ctx.Err()}
	}

	if res.err != nil {
		return nil, &Error{Op: "dial", Kind: classifySerial(res.err), Err: res.err}
	}

	if err := res.port.SetReadTimeout(opts.ReadTimeout); err != nil {
		if closeErr := res.port.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return nil, &Error{Op: "dial", Kind: classifySerial(err), Err: fmt.Errorf("failed to set read timeout: %w", err)}
	}

	return newLink(path, res.port, classifySerial), nil
}

func serialPortErrorCode(err error) (serial.PortErrorCode, bool) {
	var ptr *serial.PortError
	if errors.As(err, &ptr) {
		return ptr.Code(), true
	}
	var val serial.PortError
	if errors.As(err, &val) {
		return val.Code(), true
	}
	return 0, false
}

// classifySerial maps serial library and OS errors onto a Kind.
func classifySerial(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	if code, ok := serialPortErrorCode(err); ok {
		switch code {
		case serial.PortNotFound:
			return KindDeviceNotFound
		case serial.PortBusy, serial.PermissionDenied:
			return KindPortUnavailable
		case serial.PortClosed:
			return KindChannelClosed
		case serial.InvalidSerialPort:
			return KindDeviceUnavailable
		default:
			return KindUnknown
		}
	}

	switch {
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, io.EOF), errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.EIO):
		return KindConnectionBroken
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENODEV), errors.Is(err, syscall.ENXIO):
		return KindDeviceNotFound
	case errors.Is(err, os.ErrPermission), errors.Is(err, syscall.EBUSY):
		return KindPortUnavailable
	case errors.Is(err, os.ErrClosed):
		return KindChannelClosed
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "input/output error"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "device disconnected"),
		strings.Contains(msg, "device not configured"):
		return KindConnectionBroken
	case strings.Contains(msg, "no such device"),
		strings.Contains(msg, "no such file"):
		return KindDeviceNotFound
	case strings.Contains(msg, "resource busy"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "access is denied"):
		return KindPortUnavailable
	}

	return KindUnknown
}
