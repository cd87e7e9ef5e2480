// Package config loads the station configuration file and turns it into
// the options of the radio, link and tower layers.
//
// The file is JSON5 (comments and trailing commas allowed). Zero values
// take the package defaults, so a minimal file only names the bus and
// the towers.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/herlein/watertower/pkg/link"
	"github.com/herlein/watertower/pkg/profiles"
	"github.com/herlein/watertower/pkg/publish"
	"github.com/herlein/watertower/pkg/si4432"
	"github.com/herlein/watertower/pkg/synth"
	"github.com/herlein/watertower/pkg/watertower"
)

// Bus kinds
const (
	BusSpidev    = "spidev"
	BusCH341     = "ch341"
	BusBusPirate = "buspirate"
	BusSim       = "sim"
)

// Defaults for the bus section
const (
	DefaultBusKind  = BusSpidev
	DefaultSpidev   = "/dev/spidev0.0"
	DefaultSpeedKHz = 1000
)

var (
	ErrUnknownBus     = errors.New("unknown bus kind")
	ErrInvalidRadio   = errors.New("invalid radio settings")
	ErrInvalidTiming  = errors.New("invalid timeout")
	ErrInvalidLog     = errors.New("invalid log settings")
	ErrInvalidStation = errors.New("invalid station settings")
	ErrInvalidRedis   = errors.New("invalid redis settings")
)

// File is the on-disk station configuration
type File struct {
	Radio           RadioConfig         `json:"radio"`
	Bus             BusConfig           `json:"bus"`
	Towers          []watertower.Config `json:"towers"`
	SampleIntervalS int                 `json:"sample_interval_s,omitempty"`
	MissedLimit     int                 `json:"missed_limit,omitempty"`
	Log             LogConfig           `json:"log"`
	Redis           *RedisConfig        `json:"redis,omitempty"`
}

// RadioConfig selects the link settings. Explicit values override the
// named profile.
type RadioConfig struct {
	Profile      string  `json:"profile,omitempty"`
	FrequencyMHz float64 `json:"frequency_mhz,omitempty"`
	BaudKbps     int     `json:"baud_kbps,omitempty"`
	Channel      uint8   `json:"channel,omitempty"`
	Signature    uint16  `json:"signature,omitempty"`

	ReplyTimeoutMS    int `json:"reply_timeout_ms,omitempty"`
	TransmitTimeoutMS int `json:"transmit_timeout_ms,omitempty"`
	PollIntervalUS    int `json:"poll_interval_us,omitempty"`
	PORTimeoutMS      int `json:"por_timeout_ms,omitempty"`
}

// BusConfig selects the SPI backend and the control pins
type BusConfig struct {
	Kind     string `json:"kind"`
	Port     string `json:"port,omitempty"` // spidev device, serial port or CH341 selector
	SpeedKHz int    `json:"speed_khz,omitempty"`
	Shutdown string `json:"shutdown_pin,omitempty"` // GPIO name driving SDN (spidev only)
	IRQ      string `json:"irq_pin,omitempty"`      // GPIO name sampling nIRQ (spidev only)
}

// RedisConfig enables publishing tower state to a Redis server
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

// Default returns a configuration for one tower on the default bus
func Default() *File {
	return &File{
		Radio: RadioConfig{Profile: "433-20k"},
		Bus:   BusConfig{Kind: DefaultBusKind, Port: DefaultSpidev, SpeedKHz: DefaultSpeedKHz},
		Towers: []watertower.Config{
			{ID: 0, Name: "tower 0", Enabled: true, HeightCM: watertower.DefaultHeightCM, ReservedCM: watertower.DefaultReservedCM},
		},
		SampleIntervalS: int(watertower.DefaultSampleInterval / time.Second),
		Log:             LogConfig{Level: DefaultLogLevel, Format: LogText},
	}
}

// Validate checks every section and returns the first problem found
func (f *File) Validate() error {
	s, err := f.ToSettings()
	if err != nil {
		return err
	}
	if _, ok := synth.Frequency(s.FrequencyMHz); !ok {
		return fmt.Errorf("%w: frequency %.3f MHz outside %d..%d", ErrInvalidRadio, s.FrequencyMHz, synth.MinFrequencyMHz, synth.MaxFrequencyMHz)
	}
	if _, ok := synth.BaudRate(s.BaudKbps); !ok {
		return fmt.Errorf("%w: baud rate %d kbps outside %d..%d", ErrInvalidRadio, s.BaudKbps, synth.MinBaudKbps, synth.MaxBaudKbps)
	}

	r := f.Radio
	for name, v := range map[string]int{
		"reply_timeout_ms":    r.ReplyTimeoutMS,
		"transmit_timeout_ms": r.TransmitTimeoutMS,
		"poll_interval_us":    r.PollIntervalUS,
		"por_timeout_ms":      r.PORTimeoutMS,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s = %d", ErrInvalidTiming, name, v)
		}
	}

	switch f.busKind() {
	case BusSpidev, BusCH341, BusBusPirate, BusSim:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBus, f.Bus.Kind)
	}
	if f.Bus.SpeedKHz < 0 {
		return fmt.Errorf("%w: speed %d kHz", ErrUnknownBus, f.Bus.SpeedKHz)
	}

	if len(f.Towers) > watertower.MaxQuantity {
		return fmt.Errorf("%w: %d towers, at most %d", ErrInvalidStation, len(f.Towers), watertower.MaxQuantity)
	}
	seen := make(map[int]bool)
	for _, t := range f.Towers {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%w: tower %d: %w", ErrInvalidStation, t.ID, err)
		}
		if seen[t.ID] {
			return fmt.Errorf("%w: tower %d: %w", ErrInvalidStation, t.ID, watertower.ErrDuplicateTower)
		}
		seen[t.ID] = true
	}
	if f.SampleIntervalS < 0 || f.SampleIntervalS > 255 {
		return fmt.Errorf("%w: %w", ErrInvalidStation, watertower.ErrInvalidInterval)
	}
	if f.MissedLimit < 0 {
		return fmt.Errorf("%w: missed_limit %d", ErrInvalidStation, f.MissedLimit)
	}

	if r := f.Redis; r != nil && (r.Addr == "" || r.DB < 0) {
		return fmt.Errorf("%w: addr %q db %d", ErrInvalidRedis, r.Addr, r.DB)
	}

	if _, err := parseLevel(f.Log.Level); err != nil {
		return err
	}
	switch f.Log.Format {
	case "", LogText, LogJSON:
	default:
		return fmt.Errorf("%w: format %q", ErrInvalidLog, f.Log.Format)
	}
	return nil
}

// ToSettings resolves the profile and the explicit overrides
func (f *File) ToSettings() (si4432.Settings, error) {
	s := si4432.DefaultSettings()
	r := f.Radio
	if r.Profile != "" {
		p, err := profiles.Get(r.Profile)
		if err != nil {
			return s, fmt.Errorf("%w: %w", ErrInvalidRadio, err)
		}
		s = p.Settings
	}
	if r.FrequencyMHz != 0 {
		s.FrequencyMHz = r.FrequencyMHz
	}
	if r.BaudKbps != 0 {
		s.BaudKbps = r.BaudKbps
	}
	if r.Channel != 0 {
		s.Channel = r.Channel
	}
	if r.Signature != 0 {
		s.Signature = r.Signature
	}
	return s, nil
}

// ToDeviceOptions returns the driver timing. Pins are left to the bus.
func (f *File) ToDeviceOptions() si4432.Options {
	r := f.Radio
	return si4432.Options{
		PollInterval:    time.Duration(r.PollIntervalUS) * time.Microsecond,
		TransmitTimeout: time.Duration(r.TransmitTimeoutMS) * time.Millisecond,
		PORTimeout:      time.Duration(r.PORTimeoutMS) * time.Millisecond,
	}
}

// ToLinkOptions returns the link layer options
func (f *File) ToLinkOptions() link.Options {
	return link.Options{
		ReplyTimeout: time.Duration(f.Radio.ReplyTimeoutMS) * time.Millisecond,
	}
}

// ToTowerOptions returns the tower options shared by every tower
func (f *File) ToTowerOptions() watertower.Options {
	return watertower.Options{
		SampleInterval: time.Duration(f.SampleIntervalS) * time.Second,
		MissedLimit:    f.MissedLimit,
	}
}

// ToPublishOptions returns the Redis publisher options, false when
// publishing is off
func (f *File) ToPublishOptions() (publish.Options, bool) {
	if f.Redis == nil {
		return publish.Options{}, false
	}
	return publish.Options{
		Addr:     f.Redis.Addr,
		Password: f.Redis.Password,
		DB:       f.Redis.DB,
		Prefix:   f.Redis.Prefix,
	}, true
}

// BusKind returns the bus kind with the default applied
func (f *File) BusKind() string {
	return f.busKind()
}

func (f *File) busKind() string {
	if f.Bus.Kind == "" {
		return DefaultBusKind
	}
	return f.Bus.Kind
}

// BusSpeedHz returns the SPI clock with the default applied
func (f *File) BusSpeedHz() int64 {
	if f.Bus.SpeedKHz == 0 {
		return DefaultSpeedKHz * 1000
	}
	return int64(f.Bus.SpeedKHz) * 1000
}
