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

package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MeasureBoard/measureboard-core/pkg/board"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLayouts(t *testing.T) {
	t.Parallel()

	csv := "zone,index,symbol\ntop,0,q\ntop,1,w\nbottom,0,1\n"
	got, err := ReadLayouts(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, map[board.Zone][]string{
		board.ZoneTop:    {"q", "w"},
		board.ZoneBottom: {"1"},
	}, got)
}

func TestReadLayoutsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		csv  string
		want string
	}{
		{name: "measuring zone", csv: "zone,index,symbol\nmeasuring,0,a\n", want: "unknown keyboard zone"},
		{name: "unknown zone", csv: "zone,index,symbol\nleft,0,a\n", want: "unknown keyboard zone"},
		{name: "negative index", csv: "zone,index,symbol\ntop,-1,a\n", want: "negative index"},
		{name: "empty symbol", csv: "zone,index,symbol\ntop,0,\n", want: "empty symbol"},
		{name: "duplicate", csv: "zone,index,symbol\ntop,0,a\ntop,0,b\n", want: "duplicate index"},
		{name: "gap", csv: "zone,index,symbol\ntop,0,a\ntop,2,b\n", want: "leaves a gap"},
		{name: "bad index", csv: "zone,index,symbol\ntop,x,a\n", want: "unmarshal layouts CSV"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadLayouts(strings.NewReader(tt.csv))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteLayoutsDefaults(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteLayouts(&buf, board.DefaultLayouts()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "zone,index,symbol", lines[0])
	assert.Equal(t, "top,0,q", lines[1])
	assert.Equal(t, "bottom,12,.", lines[len(lines)-1])
}
