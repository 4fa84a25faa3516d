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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MeasureBoard/measureboard-core/pkg/board"
	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
	"github.com/MeasureBoard/measureboard-core/pkg/protocol"
	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	SchemaVersion = 1
	CfgEnv        = "MEASUREBOARD_CFG"
)

var ErrSchemaMismatch = errors.New("schema version mismatch")

type Values struct {
	Device       Device    `toml:"device"`
	Outputs      Outputs   `toml:"outputs"`
	Zones        Zones     `toml:"zones"`
	Defaults     Defaults  `toml:"defaults"`
	Telemetry    Telemetry `toml:"telemetry"`
	Engine       Engine    `toml:"engine"`
	Stylus       Stylus    `toml:"stylus"`
	Backlight    Backlight `toml:"backlight"`
	ConfigSchema int       `toml:"config_schema"`
	DebugLogging bool      `toml:"debug_logging"`
}

// Device selects the board. Address is a Bluetooth MAC for a native RFCOMM
// connection or a serial port path.
type Device struct {
	Address      string `toml:"address"`
	Adapter      string `toml:"adapter,omitempty"`
	BaudRate     int    `toml:"baud_rate,omitempty" validate:"gte=0"`
	Channel      uint8  `toml:"channel,omitempty" validate:"lte=30"`
	CheckAdapter bool   `toml:"check_adapter"`
}

// Engine timings, all in milliseconds. Zero keeps the built-in default.
type Engine struct {
	PollIntervalMs       int `toml:"poll_interval_ms,omitempty" validate:"gte=0"`
	SendPacingMs         int `toml:"send_pacing_ms,omitempty" validate:"gte=0"`
	ResponseTimeoutMs    int `toml:"response_timeout_ms,omitempty" validate:"gte=0"`
	CalibrationTimeoutMs int `toml:"calibration_timeout_ms,omitempty" validate:"gte=0"`
	ReconnectDelayMs     int `toml:"reconnect_delay_ms,omitempty" validate:"gte=0"`
}

// Defaults are the settings a sync pushes to the board.
type Defaults struct {
	SensorMode         string `toml:"sensor_mode" validate:"oneof=length alpha shortcut numeric"`
	InterfaceMode      int    `toml:"interface_mode" validate:"gte=0,lte=9"`
	BacklightLevel     int    `toml:"backlight_level" validate:"gte=0,lte=100"`
	SettlingDelay      int    `toml:"settling_delay" validate:"gte=0,lte=9999"`
	MaxDeviation       int    `toml:"max_deviation" validate:"gte=0,lte=9999"`
	ReadingCount       int    `toml:"reading_count" validate:"gte=1,lte=99"`
	StylusMessage      bool   `toml:"stylus_message"`
	RequireCalibration bool   `toml:"require_calibration"`
}

type Stylus struct {
	PenOffset    int `toml:"pen_offset"`
	FingerOffset int `toml:"finger_offset"`
}

type ZoneLayout struct {
	Symbols   []string `toml:"symbols,omitempty,multiline" validate:"dive,symbol"`
	Zero      int      `toml:"zero"`
	CellWidth int      `toml:"cell_width" validate:"gt=0"`
}

type Zones struct {
	LayoutsFile    string     `toml:"layouts_file,omitempty"`
	Top            ZoneLayout `toml:"top"`
	Bottom         ZoneLayout `toml:"bottom"`
	SwipeThreshold int        `toml:"swipe_threshold" validate:"gte=1"`
	MeasuringMin   int        `toml:"measuring_min" validate:"gte=0"`
	BottomMin      int        `toml:"bottom_min" validate:"gte=0,ltefield=MeasuringMin"`
}

type Backlight struct {
	Step int `toml:"step" validate:"gte=1,lte=100"`
	Min  int `toml:"min" validate:"gte=0,lte=100"`
	Max  int `toml:"max" validate:"gte=0,lte=100,gtefield=Min"`
}

type Console struct {
	Unit    string `toml:"unit,omitempty"`
	Enabled bool   `toml:"enabled"`
	JSON    bool   `toml:"json"`
}

type Keyboard struct {
	Submit  string `toml:"submit,omitempty"`
	Enabled bool   `toml:"enabled"`
}

type MQTT struct {
	Broker   string `toml:"broker,omitempty" validate:"required_if=Enabled true"`
	Topic    string `toml:"topic,omitempty" validate:"required_if=Enabled true"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
	QoS      byte   `toml:"qos,omitempty" validate:"lte=2"`
	Retained bool   `toml:"retained,omitempty"`
	Enabled  bool   `toml:"enabled"`
}

type WebSocket struct {
	Listen       string `toml:"listen,omitempty" validate:"omitempty,hostname_port"`
	InstanceName string `toml:"instance_name,omitempty"`
	Enabled      bool   `toml:"enabled"`
	Advertise    bool   `toml:"advertise"`
}

type History struct {
	RetentionDays int  `toml:"retention_days,omitempty" validate:"gte=0"`
	Enabled       bool `toml:"enabled"`
}

type Outputs struct {
	MQTT      MQTT      `toml:"mqtt"`
	WebSocket WebSocket `toml:"websocket"`
	Keyboard  Keyboard  `toml:"keyboard"`
	History   History   `toml:"history"`
	Console   Console   `toml:"console"`
}

type Telemetry struct {
	DSN       string `toml:"dsn,omitempty" validate:"omitempty,url"`
	InstallID string `toml:"install_id,omitempty"`
	Enabled   bool   `toml:"enabled"`
}

// BaseDefaults mirrors board.DefaultSettings and board.DefaultSyncTargets.
var BaseDefaults = func() Values {
	settings := board.DefaultSettings()
	targets := board.DefaultSyncTargets()
	top := settings.Layouts[board.ZoneTop]
	bottom := settings.Layouts[board.ZoneBottom]
	return Values{
		ConfigSchema: SchemaVersion,
		Device: Device{
			CheckAdapter: true,
		},
		Engine: Engine{
			ReconnectDelayMs: 5000,
		},
		Defaults: Defaults{
			SensorMode:         targets.SensorMode.String(),
			InterfaceMode:      targets.InterfaceMode,
			BacklightLevel:     targets.BacklightLevel,
			SettlingDelay:      targets.SettlingDelay,
			MaxDeviation:       targets.MaxDeviation,
			ReadingCount:       targets.ReadingCount,
			StylusMessage:      targets.StylusMessage,
			RequireCalibration: targets.RequireCalibration,
		},
		Stylus: Stylus{
			PenOffset:    settings.PenOffset,
			FingerOffset: settings.FingerOffset,
		},
		Zones: Zones{
			Top:            ZoneLayout{Zero: top.Zero, CellWidth: top.CellWidth, Symbols: top.Symbols},
			Bottom:         ZoneLayout{Zero: bottom.Zero, CellWidth: bottom.CellWidth, Symbols: bottom.Symbols},
			SwipeThreshold: settings.SwipeThreshold,
			MeasuringMin:   settings.Bands.MeasuringMin,
			BottomMin:      settings.Bands.BottomMin,
		},
		Backlight: Backlight{
			Step: settings.BacklightStep,
			Min:  settings.BacklightMin,
			Max:  settings.BacklightMax,
		},
		Outputs: Outputs{
			Console: Console{Enabled: true},
			WebSocket: WebSocket{
				Listen:    "127.0.0.1:7497",
				Advertise: true,
			},
			History: History{RetentionDays: 30},
		},
	}
}()

type Instance struct {
	fs       afero.Fs
	cfgPath  string
	authPath string
	auth     map[string]CredentialEntry
	layouts  map[board.Zone]board.Layout
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

// NewConfig loads the config from configDir, or from the path in
// MEASUREBOARD_CFG when set, writing defaults first if no file exists.
//
//nolint:gocritic // config struct copied for immutability
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	return NewConfigWithFs(afero.NewOsFs(), configDir, defaults)
}

//nolint:gocritic // config struct copied for immutability
func NewConfigWithFs(fs afero.Fs, configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		fs:       fs,
		cfgPath:  cfgPath,
		authPath: filepath.Join(filepath.Dir(cfgPath), AuthFile),
		vals:     defaults.clone(),
		defaults: defaults,
	}

	if _, err := fs.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		err := fs.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err := cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Load reads the file over the defaults and validates the result. On any
// error the previously loaded values stay in effect.
func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := afero.ReadFile(c.fs, c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Fields missing from the file keep their default values.
	newVals := c.defaults.clone()
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return ErrSchemaMismatch
	}

	if err := Validate(&newVals); err != nil {
		return err
	}

	layouts, err := c.loadLayouts(&newVals)
	if err != nil {
		return err
	}

	auth, err := c.loadAuth()
	if err != nil {
		return err
	}

	c.vals = newVals
	c.layouts = layouts
	c.auth = auth
	return nil
}

func (c *Instance) loadLayouts(vals *Values) (map[board.Zone]board.Layout, error) {
	layouts := map[board.Zone]board.Layout{
		board.ZoneTop:    vals.Zones.Top.layout(),
		board.ZoneBottom: vals.Zones.Bottom.layout(),
	}
	if vals.Zones.LayoutsFile == "" {
		return layouts, nil
	}

	path := vals.Zones.LayoutsFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(c.cfgPath), path)
	}
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open layouts file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close layouts file")
		}
	}()

	symbols, err := ReadLayouts(f)
	if err != nil {
		return nil, err
	}
	for zone, syms := range symbols {
		l := layouts[zone]
		l.Symbols = syms
		layouts[zone] = l
	}
	log.Info().Str("path", path).Msg("loaded zone layouts file")
	return layouts, nil
}

func (c *Instance) loadAuth() (map[string]CredentialEntry, error) {
	if _, err := c.fs.Stat(c.authPath); err != nil {
		return map[string]CredentialEntry{}, nil
	}
	data, err := afero.ReadFile(c.fs, c.authPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth file: %w", err)
	}
	creds := LoadAuthFromData(data)
	log.Info().Msgf("loaded %d auth entries", len(creds))
	return creds, nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	c.vals.ConfigSchema = SchemaVersion

	if c.vals.Telemetry.InstallID == "" {
		newID := uuid.New().String()
		c.vals.Telemetry.InstallID = newID
		log.Info().Msgf("generated new install id: %s", newID)
	}

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(c.fs, c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Path is the file the config is read from.
func (c *Instance) Path() string {
	return c.cfgPath
}

// Values returns a copy of the current values.
func (c *Instance) Values() Values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
}

func (c *Instance) Device() Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Device
}

func (c *Instance) SetDeviceAddress(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Device.Address = address
}

func (c *Instance) Outputs() Outputs {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Outputs
}

func (c *Instance) Telemetry() Telemetry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Telemetry
}

// MQTTCredentials returns the configured broker credentials, falling back
// to an auth file entry matching the broker URL.
func (c *Instance) MQTTCredentials() (username, password string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := c.vals.Outputs.MQTT
	if m.Username != "" {
		return m.Username, m.Password
	}
	if entry := LookupAuth(c.auth, m.Broker); entry != nil {
		return entry.Username, entry.Password
	}
	return "", ""
}

// ReconnectDelay is the pause between connection attempts.
func (c *Instance) ReconnectDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Engine.ReconnectDelayMs) * time.Millisecond
}

// BoardSettings returns the state machine tables.
func (c *Instance) BoardSettings() board.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	layouts := make(map[board.Zone]board.Layout, len(c.layouts))
	for zone, l := range c.layouts {
		l.Symbols = append([]string(nil), l.Symbols...)
		layouts[zone] = l
	}
	return board.Settings{
		Layouts: layouts,
		Bands: board.ZoneBands{
			MeasuringMin: c.vals.Zones.MeasuringMin,
			BottomMin:    c.vals.Zones.BottomMin,
		},
		SwipeThreshold: c.vals.Zones.SwipeThreshold,
		PenOffset:      c.vals.Stylus.PenOffset,
		FingerOffset:   c.vals.Stylus.FingerOffset,
		BacklightStep:  c.vals.Backlight.Step,
		BacklightMin:   c.vals.Backlight.Min,
		BacklightMax:   c.vals.Backlight.Max,
	}
}

// SyncTargets returns the settings a sync pushes to the board.
func (c *Instance) SyncTargets() board.SyncTargets {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d := c.vals.Defaults
	// Validate has already checked the name.
	mode, _ := protocol.ParseSensorMode(d.SensorMode)
	return board.SyncTargets{
		InterfaceMode:      d.InterfaceMode,
		SensorMode:         mode,
		BacklightLevel:     d.BacklightLevel,
		SettlingDelay:      d.SettlingDelay,
		MaxDeviation:       d.MaxDeviation,
		ReadingCount:       d.ReadingCount,
		StylusMessage:      d.StylusMessage,
		RequireCalibration: d.RequireCalibration,
	}
}

// EngineOptions fills the timing and table fields of board.Options.
func (c *Instance) EngineOptions() board.Options {
	settings := c.BoardSettings()
	targets := c.SyncTargets()

	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.vals.Engine
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return board.Options{
		Settings:           &settings,
		Targets:            &targets,
		PollInterval:       ms(e.PollIntervalMs),
		SendPacing:         ms(e.SendPacingMs),
		ResponseTimeout:    ms(e.ResponseTimeoutMs),
		CalibrationTimeout: ms(e.CalibrationTimeoutMs),
	}
}

// clone copies vals so decoding into the result leaves vals untouched.
func (v *Values) clone() Values {
	out := *v
	out.Zones.Top.Symbols = append([]string(nil), v.Zones.Top.Symbols...)
	out.Zones.Bottom.Symbols = append([]string(nil), v.Zones.Bottom.Symbols...)
	return out
}

func (z ZoneLayout) layout() board.Layout {
	return board.Layout{
		Symbols:   append([]string(nil), z.Symbols...),
		Zero:      z.Zero,
		CellWidth: z.CellWidth,
	}
}
