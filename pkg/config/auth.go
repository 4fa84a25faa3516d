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
	"maps"
	"net/url"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

// CredentialEntry holds broker credentials kept out of the main config.
type CredentialEntry struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// brokerSchemes maps broker URL schemes to a canonical transport so an
// entry for mqtt://host also matches tcp://host.
var brokerSchemes = map[string]string{
	"tcp":   "mqtt",
	"mqtt":  "mqtt",
	"ssl":   "mqtts",
	"tls":   "mqtts",
	"mqtts": "mqtts",
	"ws":    "ws",
	"wss":   "wss",
}

type authCredsFormat struct {
	Creds map[string]CredentialEntry `toml:"creds"`
}

// LoadAuthFromData parses auth.toml. Entries can sit at the root,
// ["mqtt://broker:1883"], or under a creds table, [creds."broker:1883"].
// Both forms may be mixed.
func LoadAuthFromData(data []byte) map[string]CredentialEntry {
	result := make(map[string]CredentialEntry)

	var root map[string]CredentialEntry
	if err := toml.Unmarshal(data, &root); err == nil {
		for k, v := range root {
			if k != "creds" {
				result[k] = v
			}
		}
	}

	var creds authCredsFormat
	if err := toml.Unmarshal(data, &creds); err == nil {
		maps.Copy(result, creds.Creds)
	}

	return result
}

func canonicalScheme(scheme string) string {
	lower := strings.ToLower(scheme)
	if canonical, ok := brokerSchemes[lower]; ok {
		return canonical
	}
	return lower
}

// LookupAuth finds credentials for a broker address. An entry with the same
// scheme wins, then one with an equivalent scheme, then a bare host:port
// entry. A broker given without a scheme is treated as mqtt.
func LookupAuth(creds map[string]CredentialEntry, broker string) *CredentialEntry {
	if len(creds) == 0 || broker == "" {
		return nil
	}
	if !strings.Contains(broker, "://") {
		broker = "mqtt://" + broker
	}

	u, err := url.Parse(broker)
	if err != nil {
		log.Warn().Msgf("invalid broker url: %s", broker)
		return nil
	}

	var equivalent, hostOnly *CredentialEntry
	for k, v := range creds {
		if !strings.Contains(k, "://") {
			if hostOnly == nil && strings.EqualFold(k, u.Host) {
				hostOnly = &v
			}
			continue
		}
		defURL, err := url.Parse(k)
		if err != nil {
			log.Error().Msgf("invalid auth config url: %s", k)
			continue
		}
		if !strings.EqualFold(defURL.Host, u.Host) {
			continue
		}
		if strings.EqualFold(defURL.Scheme, u.Scheme) {
			return &v
		}
		if equivalent == nil && canonicalScheme(defURL.Scheme) == canonicalScheme(u.Scheme) {
			equivalent = &v
		}
	}

	if equivalent != nil {
		return equivalent
	}
	return hostOnly
}
