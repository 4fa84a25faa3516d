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

package transport

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"go.bug.st/serial"
)

// linuxPortPrefixes are the device nodes a board can appear as: a bound
// rfcomm node or a USB serial adapter.
var linuxPortPrefixes = []string{"rfcomm", "ttyUSB", "ttyACM"}

func listDevDir(fs afero.Fs, dir string) ([]string, error) {
	exists, err := afero.DirExists(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !exists {
		return []string{}, nil
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s directory: %w", dir, err)
	}

	devices := make([]string, 0, len(entries))
	for _, v := range entries {
		if v.IsDir() {
			continue
		}
		for _, prefix := range linuxPortPrefixes {
			if strings.HasPrefix(v.Name(), prefix) {
				devices = append(devices, filepath.Join(dir, v.Name()))
				break
			}
		}
	}
	sort.Strings(devices)
	return devices, nil
}

func filterPorts(ports []string, keep func(string) bool) []string {
	devices := make([]string, 0, len(ports))
	for _, v := range ports {
		if keep(v) {
			devices = append(devices, v)
		}
	}
	return devices
}

func isDarwinBoardPort(p string) bool {
	if !strings.HasPrefix(p, "/dev/tty.") {
		return false
	}
	return p != "/dev/tty.Bluetooth-Incoming-Port"
}

// ListPorts returns serial devices a board could be attached to.
func ListPorts() ([]string, error) {
	switch runtime.GOOS {
	case "linux":
		return listDevDir(afero.NewOsFs(), "/dev")
	case "darwin":
		ports, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("failed to get serial ports list on darwin: %w", err)
		}
		return filterPorts(ports, isDarwinBoardPort), nil
	case "windows":
		ports, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("failed to get serial ports list on windows: %w", err)
		}
		return filterPorts(ports, func(p string) bool {
			return strings.HasPrefix(p, "COM")
		}), nil
	default:
		ports, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("failed to get serial ports list: %w", err)
		}
		log.Debug().Strs("ports", ports).Msg("unfiltered serial port list")
		return ports, nil
	}
}
