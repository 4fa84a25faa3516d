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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/MeasureBoard/measureboard-core/pkg/board"
	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
)

// Console writes one line per output. Measurements are suffixed with the
// configured unit; JSON mode writes the output object instead.
type Console struct {
	w    io.Writer
	unit string
	mu   syncutil.Mutex
	json bool
}

func NewConsole(w io.Writer, unit string, jsonLines bool) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w, unit: unit, json: jsonLines}
}

func (c *Console) Deliver(out board.Output) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.json {
		if err := json.NewEncoder(c.w).Encode(out); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return nil
	}

	line := out.String()
	if out.Kind == board.OutputMeasurement && c.unit != "" {
		line += " " + c.unit
	}
	if _, err := fmt.Fprintln(c.w, line); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
