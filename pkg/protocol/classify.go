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

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EventKind identifies what a frame carried.
type EventKind int

const (
	EventUnclassified EventKind = iota
	EventPosition
	EventSwipe
	EventKey
)

func (k EventKind) String() string {
	switch k {
	case EventPosition:
		return "position"
	case EventSwipe:
		return "swipe"
	case EventKey:
		return "key"
	default:
		return "unclassified"
	}
}

// Key is a decoded control box key.
type Key struct {
	Symbol string
	Code   int
}

// Event is a classified frame. Raw always holds the original frame text.
type Event struct {
	Raw   string
	Key   Key
	Kind  EventKind
	Value int
}

// Action key symbols. These are interpreted by the state machine instead of
// being delivered as output.
const (
	KeyStylus        = "stylus"
	KeyBacklightUp   = "light+"
	KeyBacklightDown = "light-"
	KeyMute          = "mute"
	KeyMode          = "mode"
)

// KeyTable maps the control box's two-digit key codes to symbols.
var KeyTable = [32]string{
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
	"enter", "backspace", "tab", "space", "escape", "delete",
	"up", "down", "left", "right",
	"+", "-", ".", ",", "/", "*",
	KeyStylus, KeyBacklightUp, KeyBacklightDown, KeyMute, KeyMode,
	"home",
}

// ErrMalformedPayload is wrapped by DecodeError when a recognised frame has a
// payload that cannot be decoded.
var ErrMalformedPayload = errors.New("malformed payload")

// DecodeError reports a frame whose tag was recognised but whose payload was
// not valid for that frame type.
type DecodeError struct {
	Err   error
	Frame string
	Kind  EventKind
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s frame %q: %v", e.Kind, e.Frame, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Classify decodes one frame. Frames that are not sensor events are returned
// unmodified as EventUnclassified. A frame with a sensor tag but an invalid
// payload returns a *DecodeError.
func Classify(frame string) (Event, error) {
	body := strings.TrimRight(frame, "\r\n")

	switch {
	case strings.HasPrefix(body, TagPosition) && strings.HasSuffix(body, DelimTerminator):
		n, err := decodeInt(body, TagPosition)
		if err != nil {
			return Event{}, &DecodeError{Frame: frame, Kind: EventPosition, Err: err}
		}
		return Event{Kind: EventPosition, Value: n, Raw: frame}, nil
	case strings.HasPrefix(body, TagSwipe) && strings.HasSuffix(body, DelimTerminator):
		n, err := decodeInt(body, TagSwipe)
		if err != nil {
			return Event{}, &DecodeError{Frame: frame, Kind: EventSwipe, Err: err}
		}
		return Event{Kind: EventSwipe, Value: n, Raw: frame}, nil
	case strings.HasPrefix(body, TagKey) && strings.HasSuffix(body, DelimTerminator):
		key, err := decodeKey(body)
		if err != nil {
			return Event{}, &DecodeError{Frame: frame, Kind: EventKey, Err: err}
		}
		return Event{Kind: EventKey, Key: key, Raw: frame}, nil
	default:
		return Event{Kind: EventUnclassified, Raw: frame}, nil
	}
}

func payload(body, tag string) string {
	return body[len(tag) : len(body)-len(DelimTerminator)]
}

func decodeInt(body, tag string) (int, error) {
	p := payload(body, tag)
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrMalformedPayload, p)
	}
	return n, nil
}

func decodeKey(body string) (Key, error) {
	p := payload(body, TagKey)
	if len(p) != 2 || p[0] < '0' || p[0] > '9' || p[1] < '0' || p[1] > '9' {
		return Key{}, fmt.Errorf("%w: key code %q is not two digits", ErrMalformedPayload, p)
	}
	code := int(p[0]-'0')*10 + int(p[1]-'0')
	if code >= len(KeyTable) {
		return Key{}, fmt.Errorf("%w: unknown key code %02d", ErrMalformedPayload, code)
	}
	return Key{Code: code, Symbol: KeyTable[code]}, nil
}

// IsBlank reports whether a frame holds nothing but delimiters and
// whitespace.
func IsBlank(frame string) bool {
	return strings.Trim(frame, " \t\r\n"+DelimTerminator) == ""
}

// IsRebootNotice reports whether a frame ends with one of the board's reboot
// notices.
func IsRebootNotice(frame string) bool {
	return strings.HasSuffix(frame, NoticeBoardReset) || strings.HasSuffix(frame, NoticeWatchdog)
}
