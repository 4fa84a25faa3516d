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
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestBdaddrReversesBytes(t *testing.T) {
	t.Parallel()

	mac, err := net.ParseMAC("01:23:45:67:89:ab")
	require.NoError(t, err)
	assert.Equal(t, [6]uint8{0xab, 0x89, 0x67, 0x45, 0x23, 0x01}, bdaddr(mac))
}

func TestClassifyRFCOMM(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want Kind
	}{
		{name: "would block", err: unix.EAGAIN, want: KindTimeout},
		{name: "connect timed out", err: fmt.Errorf("rfcomm connect: %w", unix.ETIMEDOUT), want: KindDeviceUnavailable},
		{name: "host down", err: unix.EHOSTDOWN, want: KindDeviceUnavailable},
		{name: "unreachable", err: unix.EHOSTUNREACH, want: KindDeviceNotFound},
		{name: "adapter down", err: unix.ENETDOWN, want: KindAdapterOff},
		{name: "no bluetooth", err: unix.EAFNOSUPPORT, want: KindAdapterOff},
		{name: "channel refused", err: unix.ECONNREFUSED, want: KindPortUnavailable},
		{name: "reset", err: unix.ECONNRESET, want: KindConnectionBroken},
		{name: "peer closed", err: io.EOF, want: KindConnectionBroken},
		{name: "bad fd", err: unix.EBADF, want: KindChannelClosed},
		{name: "other", err: errors.New("mystery"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, classifyRFCOMM(tt.err))
		})
	}
}
