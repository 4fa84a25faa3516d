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
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// watchedFiles are the files whose changes trigger a reload.
func (c *Instance) watchedFiles() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	files := map[string]bool{
		filepath.Clean(c.cfgPath):  true,
		filepath.Clean(c.authPath): true,
	}
	if p := c.vals.Zones.LayoutsFile; p != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(c.cfgPath), p)
		}
		files[filepath.Clean(p)] = true
	}
	return files
}

// Watch reloads the config when the file, the auth file or the layouts file
// changes, calling onReload after each successful reload. A reload that
// fails is logged and the old values stay in effect. Watch blocks until ctx
// is done. It needs the OS filesystem.
func (c *Instance) Watch(ctx context.Context, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close config watcher")
		}
	}()

	// Editors often replace the file, so watch the directory.
	dir := filepath.Dir(c.cfgPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory (%s): %w", dir, err)
	}
	log.Info().Str("dir", dir).Msg("watching config for changes")

	debounce := time.NewTimer(ReloadDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !c.watchedFiles()[filepath.Clean(event.Name)] {
				continue
			}
			log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("config file changed")
			debounce.Reset(ReloadDebounce)
		case <-debounce.C:
			if err := c.Load(); err != nil {
				log.Error().Err(err).Msg("config reload failed, keeping previous values")
				continue
			}
			log.Info().Msg("config reloaded")
			if onReload != nil {
				onReload()
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(watchErr).Msg("error in config watcher")
		}
	}
}
