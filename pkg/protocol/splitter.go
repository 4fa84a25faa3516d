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

package protocol

import "strings"

// Splitter turns a stream of received bytes into delimited frames. Partial
// data stays buffered until a later Push completes it.
//
// A frame ends at the delimiter occurrence that completes earliest in the
// buffer, with the delimiter priority order breaking ties. A '#' terminator
// takes one directly following CR or LF with it, so "%di:3#\r" is a single
// frame; a '#' that is the last buffered byte waits for the next byte before
// the frame is cut. Both rules only look at bytes that have already arrived,
// so the frames produced never depend on how the stream was chunked.
type Splitter struct {
	buf        []byte
	delimiters []string
}

// NewSplitter returns a splitter for the given delimiters. With no
// delimiters the protocol's Delimiters are used.
func NewSplitter(delimiters ...string) *Splitter {
	if len(delimiters) == 0 {
		delimiters = Delimiters
	}
	return &Splitter{delimiters: delimiters}
}

// Push appends data to the buffer and returns every frame it completed, in
// arrival order.
func (s *Splitter) Push(data []byte) []string {
	s.buf = append(s.buf, data...)

	var frames []string
	for {
		end, ok := s.cut()
		if !ok {
			break
		}
		frames = append(frames, string(s.buf[:end]))
		s.buf = s.buf[end:]
	}

	if len(s.buf) == 0 {
		s.buf = nil
	}
	return frames
}

// cut returns the length of the next complete frame in the buffer.
func (s *Splitter) cut() (int, bool) {
	text := string(s.buf)
	best := -1
	bestDelim := ""

	for _, d := range s.delimiters {
		i := strings.Index(text, d)
		if i < 0 {
			continue
		}
		end := i + len(d)
		// strictly earlier only, so the first delimiter in priority order
		// wins ties
		if best < 0 || end < best {
			best = end
			bestDelim = d
		}
	}

	if best < 0 {
		return 0, false
	}

	if bestDelim == DelimTerminator {
		if best == len(text) {
			return 0, false
		}
		if next := text[best]; next == '\r' || next == '\n' {
			best++
		}
	}

	return best, true
}

// Buffered returns the data still waiting for a delimiter.
func (s *Splitter) Buffered() string {
	return string(s.buf)
}

// Reset drops any buffered data.
func (s *Splitter) Reset() {
	s.buf = nil
}
