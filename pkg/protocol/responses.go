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
	"regexp"
	"strconv"
)

// ResponseKind names the command class a confirmed response answers.
type ResponseKind int

const (
	ResponseUnknown ResponseKind = iota
	ResponseInterfaceMode
	ResponseSensorMode
	ResponseStylusMessage
	ResponseSettlingDelay
	ResponseMaxDeviation
	ResponseReadingCount
	ResponseBacklight
	ResponseBacklightAuto
	ResponseBacklightSensitivity
	ResponseCalibrationState
	ResponseBattery
	ResponseCalibrationReady
	ResponseCalibrationPoint
)

var responseKindNames = map[ResponseKind]string{
	ResponseUnknown:              "unknown",
	ResponseInterfaceMode:        "interface-mode",
	ResponseSensorMode:           "sensor-mode",
	ResponseStylusMessage:        "stylus-message",
	ResponseSettlingDelay:        "settling-delay",
	ResponseMaxDeviation:         "max-deviation",
	ResponseReadingCount:         "reading-count",
	ResponseBacklight:            "backlight",
	ResponseBacklightAuto:        "backlight-auto",
	ResponseBacklightSensitivity: "backlight-sensitivity",
	ResponseCalibrationState:     "calibration-state",
	ResponseBattery:              "battery",
	ResponseCalibrationReady:     "calibration-ready",
	ResponseCalibrationPoint:     "calibration-point",
}

func (k ResponseKind) String() string {
	if s, ok := responseKindNames[k]; ok {
		return s
	}
	return "unknown"
}

type responsePattern struct {
	re   *regexp.Regexp
	kind ResponseKind
}

// responsePatterns is tested in order; the first match names the response.
var responsePatterns = []responsePattern{
	{kind: ResponseInterfaceMode, re: regexp.MustCompile(`%di:(\d+)#`)},
	{kind: ResponseSensorMode, re: regexp.MustCompile(`%(length|alpha|shortcut|numeric) mode activated#`)},
	{kind: ResponseStylusMessage, re: regexp.MustCompile(`%sdm:([01])#`)},
	{kind: ResponseSettlingDelay, re: regexp.MustCompile(`%sd:(\d+)#`)},
	{kind: ResponseMaxDeviation, re: regexp.MustCompile(`%md:(\d+)#`)},
	{kind: ResponseReadingCount, re: regexp.MustCompile(`%rc:(\d+)#`)},
	{kind: ResponseBacklight, re: regexp.MustCompile(`%bl:(\d+)#`)},
	{kind: ResponseBacklightAuto, re: regexp.MustCompile(`%ba:([01])#`)},
	{kind: ResponseBacklightSensitivity, re: regexp.MustCompile(`%bs:(\d+)#`)},
	{kind: ResponseCalibrationState, re: regexp.MustCompile(`%cs:([01]),(-?\d+),(-?\d+)#`)},
	{kind: ResponseBattery, re: regexp.MustCompile(`%bat:(\d+)#`)},
	{kind: ResponseCalibrationReady, re: regexp.MustCompile(`%cr:(\d+)#`)},
	{kind: ResponseCalibrationPoint, re: regexp.MustCompile(`%cp:(\d+),(-?\d+)#`)},
}

// Response is a confirmed response frame tagged with the command class it
// answers.
type Response struct {
	Frame string
	Args  []string
	Kind  ResponseKind
}

// Int returns argument i as an integer.
func (r Response) Int(i int) (int, error) {
	if i < 0 || i >= len(r.Args) {
		return 0, &DecodeError{Frame: r.Frame, Err: ErrMalformedPayload}
	}
	n, err := strconv.Atoi(r.Args[i])
	if err != nil {
		return 0, &DecodeError{Frame: r.Frame, Err: err}
	}
	return n, nil
}

// IdentifyResponse re-tests a confirmed frame against the named response
// patterns. Frames that match none come back as ResponseUnknown.
func IdentifyResponse(frame string) Response {
	for _, p := range responsePatterns {
		m := p.re.FindStringSubmatch(frame)
		if m == nil {
			continue
		}
		return Response{Kind: p.kind, Frame: frame, Args: m[1:]}
	}
	return Response{Kind: ResponseUnknown, Frame: frame}
}
