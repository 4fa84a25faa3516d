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
	"path/filepath"

	"github.com/adrg/xdg"
)

// Paths are the directories the application reads and writes.
type Paths struct {
	ConfigDir string
	DataDir   string
	LogDir    string
}

// DefaultPaths follows the XDG base directory layout.
func DefaultPaths() Paths {
	return Paths{
		ConfigDir: filepath.Join(xdg.ConfigHome, AppName),
		DataDir:   filepath.Join(xdg.DataHome, AppName),
		LogDir:    filepath.Join(xdg.DataHome, AppName, LogsDir),
	}
}

// LogPath is the rotating log file.
func (p Paths) LogPath() string {
	return filepath.Join(p.LogDir, LogFile)
}

// HistoryPath is the output history database file.
func (p Paths) HistoryPath() string {
	return filepath.Join(p.DataDir, HistoryFile)
}
