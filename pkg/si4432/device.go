// Package si4432 drives a Silicon Labs Si4432 (HopeRF RFM22) transceiver
// over SPI in FIFO packet mode.
//
// A Device owns the chip's register state. It is not safe for concurrent
// use: the link package serializes every caller through one Radio.
package si4432

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/herlein/watertower/pkg/registers"
)

// Settings is the caller's link configuration, applied after every reset.
type Settings struct {
	FrequencyMHz float64 `json:"frequency_mhz"`
	BaudKbps     int     `json:"baud_kbps"`
	Channel      uint8   `json:"channel"`
	Signature    uint16  `json:"signature"`
}

// Power-up link configuration
const (
	DefaultFrequencyMHz = 433
	DefaultBaudKbps     = 20
	DefaultChannel      = 0
	DefaultSignature    = 0x2DD4
)

// DefaultSettings returns the power-up link configuration
func DefaultSettings() Settings {
	return Settings{
		FrequencyMHz: DefaultFrequencyMHz,
		BaudKbps:     DefaultBaudKbps,
		Channel:      DefaultChannel,
		Signature:    DefaultSignature,
	}
}

// Stats counts link events since the Device was created
type Stats struct {
	Transmitted      uint64 `json:"transmitted"`
	Received         uint64 `json:"received"`
	CRCErrors        uint64 `json:"crc_errors"`
	TransmitTimeouts uint64 `json:"transmit_timeouts"`
	ReplyTimeouts    uint64 `json:"reply_timeouts"`
	FIFOErrors       uint64 `json:"fifo_errors"`
	Resets           uint64 `json:"resets"`
}

type counters struct {
	transmitted      atomic.Uint64
	received         atomic.Uint64
	crcErrors        atomic.Uint64
	transmitTimeouts atomic.Uint64
	replyTimeouts    atomic.Uint64
	fifoErrors       atomic.Uint64
	resets           atomic.Uint64
}

// Device is one Si4432 on a Bus
type Device struct {
	bus  Bus
	regs *registers.Map
	opts Options
	log  logrus.FieldLogger

	settings Settings
	mode     Mode
	booted   bool
	version  uint8

	claimed atomic.Bool
	stats   counters
}

// New wraps a bus. The chip is not touched until HardReset or SoftReset.
func New(bus Bus, settings Settings, opts Options) *Device {
	opts = opts.withDefaults()
	return &Device{
		bus:      bus,
		regs:     opts.Registers,
		opts:     opts,
		log:      opts.Logger.WithField("chip", opts.Registers.Name),
		settings: settings,
	}
}

// Registers returns the register map in use
func (d *Device) Registers() *registers.Map {
	return d.regs
}

// Settings returns the configuration last accepted by the setters
func (d *Device) Settings() Settings {
	return d.settings
}

// Options returns the effective options, defaults filled in
func (d *Device) Options() Options {
	return d.opts
}

// Version returns the silicon revision read at the last reset
func (d *Device) Version() uint8 {
	return d.version
}

// Claim marks the device as owned. Only the first call returns true.
func (d *Device) Claim() bool {
	return d.claimed.CompareAndSwap(false, true)
}

// Release undoes Claim
func (d *Device) Release() {
	d.claimed.Store(false)
}

// Stats returns a copy of the event counters. Safe for concurrent use.
func (d *Device) Stats() Stats {
	return Stats{
		Transmitted:      d.stats.transmitted.Load(),
		Received:         d.stats.received.Load(),
		CRCErrors:        d.stats.crcErrors.Load(),
		TransmitTimeouts: d.stats.transmitTimeouts.Load(),
		ReplyTimeouts:    d.stats.replyTimeouts.Load(),
		FIFOErrors:       d.stats.fifoErrors.Load(),
		Resets:           d.stats.resets.Load(),
	}
}
