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

//go:build !linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

func dialRFCOMM(_ context.Context, mac net.HardwareAddr, _ Options) (*Link, error) {
	return nil, &Error{
		Op:   "dial",
		Kind: KindDeviceUnavailable,
		Err:  fmt.Errorf("direct rfcomm to %s: %w, bind the board to a serial port instead", mac, errors.ErrUnsupported),
	}
}
