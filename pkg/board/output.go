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

package board

import (
	"fmt"
	"strconv"
)

// OutputKind tells a measurement apart from a mapped symbol.
type OutputKind int

const (
	OutputMeasurement OutputKind = iota
	OutputSymbol
)

func (k OutputKind) String() string {
	if k == OutputSymbol {
		return "symbol"
	}
	return "measurement"
}

func (k OutputKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *OutputKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "measurement":
		*k = OutputMeasurement
	case "symbol":
		*k = OutputSymbol
	default:
		return fmt.Errorf("unknown output kind %q", text)
	}
	return nil
}

// Output is a value produced from a sensor event: either a measurement or a
// symbol taken from a zone layout or a control box key.
type Output struct {
	Symbol string     `json:"symbol,omitempty"`
	Kind   OutputKind `json:"kind"`
	Value  int        `json:"value"`
}

// Measurement returns a measurement output.
func Measurement(v int) Output {
	return Output{Kind: OutputMeasurement, Value: v}
}

// Symbol returns a symbol output.
func Symbol(s string) Output {
	return Output{Kind: OutputSymbol, Symbol: s}
}

func (o Output) String() string {
	if o.Kind == OutputSymbol {
		return o.Symbol
	}
	return strconv.Itoa(o.Value)
}

// Sink receives outputs. Deliver is called from the inbound worker and must
// return quickly.
type Sink interface {
	Deliver(out Output) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(out Output) error

func (f SinkFunc) Deliver(out Output) error {
	return f(out)
}

type discardSink struct{}

func (discardSink) Deliver(Output) error { return nil }
