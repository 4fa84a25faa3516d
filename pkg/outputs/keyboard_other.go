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

package outputs

import (
	"errors"
	"fmt"

	"github.com/MeasureBoard/measureboard-core/pkg/board"
)

var ErrUnmappedSymbol = errors.New("symbol has no keyboard mapping")

// Keyboard is only available on Linux.
type Keyboard struct{}

func NewKeyboard(string) (*Keyboard, error) {
	return nil, fmt.Errorf("virtual keyboard: %w", errors.ErrUnsupported)
}

func (*Keyboard) Deliver(board.Output) error {
	return errors.ErrUnsupported
}

func (*Keyboard) Close() error {
	return nil
}
