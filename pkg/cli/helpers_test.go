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

package cli

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MeasureBoard/measureboard-core/pkg/board"
	"github.com/MeasureBoard/measureboard-core/pkg/config"
	"github.com/MeasureBoard/measureboard-core/pkg/testing/mocks"
	"github.com/MeasureBoard/measureboard-core/pkg/transport"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const baseTestConfig = `
config_schema = 1

[device]
address = "/dev/rfcomm0"

[engine]
poll_interval_ms = 1
send_pacing_ms = 1
response_timeout_ms = 300
calibration_timeout_ms = 2000
reconnect_delay_ms = 1000
`

func testConfig(t *testing.T, extra string) (*config.Instance, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	dir := "/cfg"
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, config.CfgFile), []byte(baseTestConfig+extra), 0o600))
	cfg, err := config.NewConfigWithFs(fs, dir, config.BaseDefaults)
	require.NoError(t, err)
	return cfg, fs
}

// scriptSync makes tr answer the stock sync like a healthy board.
func scriptSync(tr *mocks.MockTransport) {
	tr.Reply("%di:3#", "%di:3#\r")
	tr.Reply("%sm:0#", "%length mode activated#\r")
	tr.Reply("%bl:50#", "%bl:50#\r")
	tr.Reply("%sdm:1#", "%sdm:1#\r")
	tr.Reply("%sd:50#", "%sd:50#\r")
	tr.Reply("%md:3#", "%md:3#\r")
	tr.Reply("%rc:5#", "%rc:5#\r")
	tr.Reply("%cs?#", "%cs:1,120,-40#\r")
}

// dialSequence returns a DialFunc handing out results in order. Once they
// run out it keeps failing.
func dialSequence(results ...any) (DialFunc, func() []string) {
	var (
		calls []string
		mu    sync.Mutex
	)
	dial := func(_ context.Context, id string, _ transport.Options) (board.Transport, error) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, id)
		if len(results) == 0 {
			return nil, &transport.Error{Op: "dial", Kind: transport.KindDeviceNotFound, Err: errNoMoreDials}
		}
		r := results[0]
		results = results[1:]
		switch v := r.(type) {
		case *mocks.MockTransport:
			return v, nil
		case error:
			return nil, v
		default:
			panic("unexpected dial result")
		}
	}
	seen := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), calls...)
	}
	return dial, seen
}

func writeConfig(fs afero.Fs, cfg *config.Instance, data string) error {
	//nolint:wrapcheck // test helper
	return afero.WriteFile(fs, cfg.Path(), []byte(data), 0o600)
}
