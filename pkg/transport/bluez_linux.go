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
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	bluezService   = "org.bluez"
	bluezAdapter   = "org.bluez.Adapter1"
	propertiesGet  = "org.freedesktop.DBus.Properties.Get"
	bluezPathShape = "/org/bluez/%s"
)

// adapterPowered asks BlueZ for the adapter's Powered property. ok is false
// when BlueZ could not answer.
func adapterPowered(ctx context.Context, adapter string) (powered, ok bool) {
	conn, err := dbus.SystemBusPrivate()
	if err != nil {
		log.Debug().Err(err).Msg("failed to connect to system bus")
		return false, false
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("error closing system bus connection")
		}
	}()

	if err := conn.Auth(nil); err != nil {
		log.Debug().Err(err).Msg("failed to authenticate with system bus")
		return false, false
	}
	if err := conn.Hello(); err != nil {
		log.Debug().Err(err).Msg("failed to send hello to system bus")
		return false, false
	}

	obj := conn.Object(bluezService, dbus.ObjectPath(fmt.Sprintf(bluezPathShape, adapter)))
	var v dbus.Variant
	err = obj.CallWithContext(ctx, propertiesGet, 0, bluezAdapter, "Powered").Store(&v)
	if err != nil {
		log.Debug().Err(err).Str("adapter", adapter).Msg("failed to read adapter power state")
		return false, false
	}

	powered, ok = v.Value().(bool)
	return powered, ok
}

// checkAdapter fails with KindAdapterOff when BlueZ reports the adapter as
// powered off. If BlueZ cannot be asked the dial goes ahead.
func checkAdapter(ctx context.Context, adapter string) error {
	powered, ok := adapterPowered(ctx, adapter)
	if !ok {
		return nil
	}
	if !powered {
		return &Error{Op: "dial", Kind: KindAdapterOff, Err: fmt.Errorf("%s: %w", adapter, ErrAdapterOff)}
	}
	return nil
}
