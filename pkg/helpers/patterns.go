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

package helpers

import (
	"fmt"
	"regexp"

	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
)

// PatternCache holds compiled response patterns. The same handful of
// patterns is registered for every command a board is sent, so each is
// compiled once.
type PatternCache struct {
	cache map[string]*regexp.Regexp
	mu    syncutil.RWMutex
}

var patterns = NewPatternCache()

func NewPatternCache() *PatternCache {
	return &PatternCache{cache: make(map[string]*regexp.Regexp)}
}

func (pc *PatternCache) lookup(pattern string) (*regexp.Regexp, bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	re, ok := pc.cache[pattern]
	return re, ok
}

// Compile returns the cached regexp for pattern, compiling it on first use.
func (pc *PatternCache) Compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := pc.lookup(pattern); ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern %q: %w", pattern, err)
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if cached, ok := pc.cache[pattern]; ok {
		return cached, nil
	}
	pc.cache[pattern] = re
	return re, nil
}

// MustCompile is Compile for patterns known at build time. It panics on a
// bad pattern.
func (pc *PatternCache) MustCompile(pattern string) *regexp.Regexp {
	re, err := pc.Compile(pattern)
	if err != nil {
		panic(err)
	}
	return re
}

func (pc *PatternCache) Len() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return len(pc.cache)
}

// CachedCompile compiles pattern through the shared cache.
func CachedCompile(pattern string) (*regexp.Regexp, error) {
	return patterns.Compile(pattern)
}

// CachedMustCompile compiles pattern through the shared cache and panics
// on a bad pattern.
func CachedMustCompile(pattern string) *regexp.Regexp {
	return patterns.MustCompile(pattern)
}
