// Package registers describes the control-plane register map of the Si443x
// transceiver family (Si4430/31/32, HopeRF RFM22/23) as a typed table.
//
// The driver never uses a bare register address: every access goes through a
// Field taken from a Map, so an alternate chip variant only needs a new Map.
package registers

import "fmt"

// Access describes how a register may be used.
type Access uint8

const (
	ReadOnly  Access = 1 << iota // Status registers, writes are ignored by the chip
	WriteOnly                    // Reads return undefined data
	ReadWrite = ReadOnly | WriteOnly
)

// String returns a short access mnemonic
func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "R"
	case WriteOnly:
		return "W"
	case ReadWrite:
		return "R/W"
	default:
		return "?"
	}
}

// Field is one named control register (or run of consecutive registers).
type Field struct {
	Name   string `json:"name"`
	Addr   uint8  `json:"addr"`
	Width  uint8  `json:"width"` // number of consecutive byte registers
	Access Access `json:"access"`
	Doc    string `json:"doc,omitempty"`
}

// String returns "NAME(0xAA)"
func (f Field) String() string {
	return fmt.Sprintf("%s(0x%02X)", f.Name, f.Addr)
}

// Map is the register layout used by the driver. Multi-byte fields are
// written with a single burst starting at Addr.
type Map struct {
	Name string

	DeviceType    Field
	DeviceVersion Field
	DeviceStatus  Field
	IntStatus1    Field
	IntStatus2    Field
	IntEnable1    Field
	IntEnable2    Field
	OpControl1    Field // xton/pllon/rxon/txon/swres: the link mode
	OpControl2    Field // FIFO clear bits

	IFFilterBandwidth    Field
	AFCGearshiftOverride Field
	AFCTimingControl     Field
	ClockRecoveryTiming  Field // oversampling, offset 2..0, timing loop gain 1..0
	RSSI                 Field
	AFCLimiter           Field
	DataAccessControl    Field
	HeaderControl1       Field
	HeaderControl2       Field
	PreambleLength       Field
	PreambleDetection    Field
	SyncWord             Field // sync word 3..2
	TransmitHeader       Field // transmit header 3..2
	TransmitPacketLength Field
	CheckHeader          Field // check header 3..2
	ReceivedHeader       Field // received header 3..0
	ReceivedPacketLength Field
	AGCOverride          Field
	TxPower              Field
	TxDataRate           Field // data rate 1..0
	ModulationControl    Field // modulation mode 1, modulation mode 2, frequency deviation
	FrequencyBand        Field // band select, nominal carrier 1..0
	ChannelSelect        Field
	ChannelStepSize      Field
	FIFO                 Field

	// Size is the number of addressable registers (0x00..Size-1)
	Size int
	// FIFODepth is the depth of the TX and RX FIFOs in bytes
	FIFODepth int
	// ExpectedDeviceType is the DeviceType register value of a present chip
	ExpectedDeviceType uint8
}

// Si4432 is the register map of the Si4432 rev B1 / RFM22B.
var Si4432 = Map{
	Name: "Si4432",

	DeviceType:    Field{"DEVICE_TYPE", 0x00, 1, ReadOnly, "device type code"},
	DeviceVersion: Field{"DEVICE_VERSION", 0x01, 1, ReadOnly, "silicon revision"},
	DeviceStatus:  Field{"DEVICE_STATUS", 0x02, 1, ReadOnly, "FIFO overflow/underflow, chip power state"},
	IntStatus1:    Field{"INT_STATUS1", 0x03, 1, ReadOnly, "packet sent/valid, CRC error; cleared on read"},
	IntStatus2:    Field{"INT_STATUS2", 0x04, 1, ReadOnly, "sync/preamble detect, chip ready, POR; cleared on read"},
	IntEnable1:    Field{"INT_ENABLE1", 0x05, 1, ReadWrite, "interrupt enable 1"},
	IntEnable2:    Field{"INT_ENABLE2", 0x06, 1, ReadWrite, "interrupt enable 2"},
	OpControl1:    Field{"OP_CONTROL1", 0x07, 1, ReadWrite, "operating mode and function control 1"},
	OpControl2:    Field{"OP_CONTROL2", 0x08, 1, ReadWrite, "operating mode and function control 2"},

	IFFilterBandwidth:    Field{"IF_FILTER_BW", 0x1C, 1, ReadWrite, "dwn3_bypass, ndec_exp, filset"},
	AFCGearshiftOverride: Field{"AFC_GEARSHIFT_OVERRIDE", 0x1D, 1, ReadWrite, ""},
	AFCTimingControl:     Field{"AFC_TIMING_CONTROL", 0x1E, 1, ReadWrite, ""},
	ClockRecoveryTiming:  Field{"CLOCK_RECOVERY", 0x20, 6, ReadWrite, "rxosr, ncoff, crgain"},
	RSSI:                 Field{"RSSI", 0x26, 1, ReadOnly, "received signal strength"},
	AFCLimiter:           Field{"AFC_LIMITER", 0x2A, 1, ReadWrite, ""},
	DataAccessControl:    Field{"DATA_ACCESS_CONTROL", 0x30, 1, ReadWrite, "packet handler and CRC"},
	HeaderControl1:       Field{"HEADER_CONTROL1", 0x32, 1, ReadWrite, "broadcast and header check enables"},
	HeaderControl2:       Field{"HEADER_CONTROL2", 0x33, 1, ReadWrite, "header length, sync length, fixed length"},
	PreambleLength:       Field{"PREAMBLE_LENGTH", 0x34, 1, ReadWrite, "in nibbles"},
	PreambleDetection:    Field{"PREAMBLE_DETECTION", 0x35, 1, ReadWrite, "detection threshold in nibbles"},
	SyncWord:             Field{"SYNC_WORD", 0x36, 2, ReadWrite, "sync word 3 and 2"},
	TransmitHeader:       Field{"TRANSMIT_HEADER", 0x3A, 2, ReadWrite, "transmit header 3 and 2: the signature"},
	TransmitPacketLength: Field{"TRANSMIT_PACKET_LENGTH", 0x3E, 1, ReadWrite, ""},
	CheckHeader:          Field{"CHECK_HEADER", 0x3F, 2, ReadWrite, "check header 3 and 2: the signature"},
	ReceivedHeader:       Field{"RECEIVED_HEADER", 0x47, 4, ReadOnly, ""},
	ReceivedPacketLength: Field{"RECEIVED_PACKET_LENGTH", 0x4B, 1, ReadOnly, ""},
	AGCOverride:          Field{"AGC_OVERRIDE", 0x69, 1, ReadWrite, ""},
	TxPower:              Field{"TX_POWER", 0x6D, 1, ReadWrite, ""},
	TxDataRate:           Field{"TX_DATA_RATE", 0x6E, 2, ReadWrite, "big endian data rate word"},
	ModulationControl:    Field{"MODULATION_CONTROL", 0x70, 3, ReadWrite, "mode 1, mode 2, frequency deviation"},
	FrequencyBand:        Field{"FREQUENCY_BAND", 0x75, 3, ReadWrite, "band select, nominal carrier"},
	ChannelSelect:        Field{"CHANNEL_SELECT", 0x79, 1, ReadWrite, "frequency hopping channel"},
	ChannelStepSize:      Field{"CHANNEL_STEP_SIZE", 0x7A, 1, ReadWrite, "in 10 kHz units"},
	FIFO:                 Field{"FIFO", 0x7F, 1, ReadWrite, "FIFO access, address does not auto-increment"},

	Size:               0x7F,
	FIFODepth:          64,
	ExpectedDeviceType: 0x08,
}

// Fields returns every field of the map in address order.
func (m *Map) Fields() []Field {
	return []Field{
		m.DeviceType, m.DeviceVersion, m.DeviceStatus,
		m.IntStatus1, m.IntStatus2, m.IntEnable1, m.IntEnable2,
		m.OpControl1, m.OpControl2,
		m.IFFilterBandwidth, m.AFCGearshiftOverride, m.AFCTimingControl,
		m.ClockRecoveryTiming, m.RSSI, m.AFCLimiter,
		m.DataAccessControl, m.HeaderControl1, m.HeaderControl2,
		m.PreambleLength, m.PreambleDetection, m.SyncWord,
		m.TransmitHeader, m.TransmitPacketLength, m.CheckHeader,
		m.ReceivedHeader, m.ReceivedPacketLength,
		m.AGCOverride, m.TxPower, m.TxDataRate, m.ModulationControl,
		m.FrequencyBand, m.ChannelSelect, m.ChannelStepSize, m.FIFO,
	}
}

// Lookup finds the field covering addr
func (m *Map) Lookup(addr uint8) (Field, bool) {
	for _, f := range m.Fields() {
		if addr >= f.Addr && int(addr) < int(f.Addr)+int(f.Width) {
			return f, true
		}
	}
	return Field{}, false
}
