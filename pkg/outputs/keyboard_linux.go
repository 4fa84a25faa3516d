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

package outputs

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/MeasureBoard/measureboard-core/pkg/board"
	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
	"github.com/bendahl/uinput"
)

const (
	KeyboardDeviceName = "MeasureBoard"
	uinputDev          = "/dev/uinput"
)

// ErrUnmappedSymbol is returned for a symbol with no key on the virtual
// keyboard.
var ErrUnmappedSymbol = errors.New("symbol has no keyboard mapping")

// symbolKeys holds Linux input event codes (linux/input-event-codes.h).
var symbolKeys = map[string]int{
	"q": 16, "w": 17, "e": 18, "r": 19, "t": 20, "y": 21, "u": 22, "i": 23, "o": 24, "p": 25,
	"a": 30, "s": 31, "d": 32, "f": 33, "g": 34, "h": 35, "j": 36, "k": 37, "l": 38,
	"z": 44, "x": 45, "c": 46, "v": 47, "b": 48, "n": 49, "m": 50,

	"1": 2, "2": 3, "3": 4, "4": 5, "5": 6, "6": 7, "7": 8, "8": 9, "9": 10, "0": 11,

	"escape":    1,
	"backspace": 14,
	"tab":       15,
	"enter":     28,
	"space":     57,
	"home":      102,
	"up":        103,
	"left":      105,
	"right":     106,
	"down":      108,
	"delete":    111,

	"-": 12,
	",": 51,
	".": 52,
	"/": 53,
	"*": 55,
	"+": 78,
}

// SymbolKey returns the key code typed for a symbol.
func SymbolKey(symbol string) (int, bool) {
	code, ok := symbolKeys[symbol]
	return code, ok
}

// Keyboard types outputs on a uinput virtual keyboard. A measurement is
// typed digit by digit and followed by the submit key, if one is set.
type Keyboard struct {
	device uinput.Keyboard
	submit int
	mu     syncutil.Mutex
}

// NewKeyboard creates the virtual keyboard device. submit names the key
// pressed after each measurement; empty means none. The device must be
// closed when the sink is no longer used.
func NewKeyboard(submit string) (*Keyboard, error) {
	submitKey, err := submitKeyCode(submit)
	if err != nil {
		return nil, err
	}
	kbd, err := uinput.CreateKeyboard(uinputDev, []byte(KeyboardDeviceName))
	if err != nil {
		return nil, fmt.Errorf("failed to create keyboard device: %w", err)
	}
	return &Keyboard{device: kbd, submit: submitKey}, nil
}

func newKeyboardWithDevice(device uinput.Keyboard, submit string) (*Keyboard, error) {
	submitKey, err := submitKeyCode(submit)
	if err != nil {
		return nil, err
	}
	return &Keyboard{device: device, submit: submitKey}, nil
}

func submitKeyCode(submit string) (int, error) {
	if submit == "" {
		return 0, nil
	}
	code, ok := SymbolKey(submit)
	if !ok {
		return 0, fmt.Errorf("submit key %q: %w", submit, ErrUnmappedSymbol)
	}
	return code, nil
}

func (k *Keyboard) press(code int) error {
	if err := k.device.KeyPress(code); err != nil {
		return fmt.Errorf("failed to press key %d: %w", code, err)
	}
	return nil
}

func (k *Keyboard) Deliver(out board.Output) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if out.Kind == board.OutputSymbol {
		code, ok := SymbolKey(out.Symbol)
		if !ok {
			return fmt.Errorf("%q: %w", out.Symbol, ErrUnmappedSymbol)
		}
		return k.press(code)
	}

	for _, r := range strconv.Itoa(out.Value) {
		code, ok := SymbolKey(string(r))
		if !ok {
			return fmt.Errorf("%q: %w", r, ErrUnmappedSymbol)
		}
		if err := k.press(code); err != nil {
			return err
		}
	}
	if k.submit != 0 {
		return k.press(k.submit)
	}
	return nil
}

func (k *Keyboard) Close() error {
	if err := k.device.Close(); err != nil {
		return fmt.Errorf("failed to close keyboard device: %w", err)
	}
	return nil
}
