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

//go:build linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// rfcommSocket is a blocking RFCOMM stream socket with kernel read and
// write timeouts.
type rfcommSocket struct {
	fd int
}

func (s *rfcommSocket) Read(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("rfcomm read: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (s *rfcommSocket) Write(p []byte) (int, error) {
	n, err := unix.Write(s.fd, p)
	if err != nil {
		return 0, fmt.Errorf("rfcomm write: %w", err)
	}
	return n, nil
}

func (s *rfcommSocket) Close() error {
	if err := unix.Close(s.fd); err != nil {
		return fmt.Errorf("rfcomm close: %w", err)
	}
	return nil
}

// bdaddr converts a MAC to the little-endian byte order BlueZ expects.
func bdaddr(mac net.HardwareAddr) [6]uint8 {
	var out [6]uint8
	for i := range out {
		out[i] = mac[len(out)-1-i]
	}
	return out
}

func setTimeouts(fd int, read, write time.Duration) error {
	rtv := unix.NsecToTimeval(read.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &rtv); err != nil {
		return fmt.Errorf("failed to set read timeout: %w", err)
	}
	wtv := unix.NsecToTimeval(write.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &wtv); err != nil {
		return fmt.Errorf("failed to set write timeout: %w", err)
	}
	return nil
}

func dialRFCOMM(ctx context.Context, mac net.HardwareAddr, opts Options) (*Link, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, &Error{Op: "dial", Kind: classifyRFCOMM(err), Err: fmt.Errorf("rfcomm socket: %w", err)}
	}
	sock := &rfcommSocket{fd: fd}

	addr := &unix.SockaddrRFCOMM{Addr: bdaddr(mac), Channel: opts.Channel}
	connected := make(chan error, 1)
	go func() {
		connected <- unix.Connect(fd, addr)
	}()

	select {
	case err = <-connected:
	case <-ctx.Done():
		// shutdown unblocks the pending connect before the fd is released
		_ = unix.Shutdown(fd, unix.SHUT_RDWR)
		<-connected
		_ = sock.Close()
		return nil, &Error{Op: "dial", Kind: KindTimeout, Err: ctx.Err()}
	}
	if err != nil {
		_ = sock.Close()
		return nil, &Error{
			Op:   "dial",
			Kind: classifyRFCOMM(err),
			Err:  fmt.Errorf("rfcomm connect %s channel %d: %w", mac, opts.Channel, err),
		}
	}

	if err := setTimeouts(fd, opts.ReadTimeout, opts.WriteTimeout); err != nil {
		_ = sock.Close()
		return nil, &Error{Op: "dial", Kind: KindUnknown, Err: err}
	}

	return newLink(mac.String(), sock, classifyRFCOMM), nil
}

// classifyRFCOMM maps socket errno values onto a Kind.
func classifyRFCOMM(err error) Kind {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		switch {
		case errors.Is(err, io.EOF):
			return KindConnectionBroken
		case errors.Is(err, context.DeadlineExceeded):
			return KindTimeout
		}
		return KindUnknown
	}

	switch errno {
	case unix.EAGAIN, unix.EINTR:
		return KindTimeout
	case unix.ETIMEDOUT, unix.EHOSTDOWN, unix.EINPROGRESS:
		return KindDeviceUnavailable
	case unix.EHOSTUNREACH, unix.ENOENT:
		return KindDeviceNotFound
	case unix.ENETDOWN, unix.ENODEV, unix.EAFNOSUPPORT, unix.EPROTONOSUPPORT:
		return KindAdapterOff
	case unix.ECONNREFUSED, unix.EBUSY, unix.EADDRINUSE, unix.EACCES, unix.EPERM:
		return KindPortUnavailable
	case unix.ECONNRESET, unix.ECONNABORTED, unix.EPIPE, unix.ENOTCONN, unix.EIO:
		return KindConnectionBroken
	case unix.EBADF:
		return KindChannelClosed
	default:
		return KindUnknown
	}
}
