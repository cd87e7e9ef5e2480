// Package synth computes Si443x register values from engineering units.
//
// The formulas follow the vendor's register calculator (AN440): carrier
// frequency from MHz, modem and clock recovery settings from the data rate
// in kbps. Every function is pure; writing the results is the driver's job.
package synth

import "math"

// Frequency limits in MHz
const (
	MinFrequencyMHz  = 240
	MaxFrequencyMHz  = 930
	HighBandStartMHz = 480
)

// Data rate limits in kbps
const (
	MinBaudKbps = 1
	MaxBaudKbps = 256
)

// carrierSteps is the number of nominal carrier steps per band (10 MHz, or
// 20 MHz in the high band).
const carrierSteps = 64000

// FrequencyRegisters holds the band select and nominal carrier bytes
// (registers 0x75..0x77).
type FrequencyRegisters struct {
	HighBand bool
	Band     uint8  // 6 bits
	Carrier  uint16 // nominal carrier frequency
}

// Bytes returns the three register bytes in write order. The sideband
// select bit (0x40) is always set.
func (f FrequencyRegisters) Bytes() []byte {
	hb := uint8(0)
	if f.HighBand {
		hb = 1
	}
	return []byte{
		0x40 | hb<<5 | f.Band&0x3F,
		byte(f.Carrier >> 8),
		byte(f.Carrier),
	}
}

// Frequency computes the band and carrier registers for mhz. It reports
// false, and returns the zero value, when mhz is outside [240, 930].
//
//	highBand = mhz >= 480
//	fPart    = mhz / (10 * (highBand+1)) - 24
//	band     = floor(fPart)
//	carrier  = round((fPart - band) * 64000)
//
// fPart is evaluated in units of 1/64000 so a carrier that rounds up to a
// whole band carries into the band instead of overflowing.
func Frequency(mhz float64) (FrequencyRegisters, bool) {
	if math.IsNaN(mhz) || mhz < MinFrequencyMHz || mhz > MaxFrequencyMHz {
		return FrequencyRegisters{}, false
	}
	highBand := mhz >= HighBandStartMHz
	divider := 10.0
	if highBand {
		divider = 20.0
	}
	steps := int64(math.Round(mhz*carrierSteps/divider)) - 24*carrierSteps
	return FrequencyRegisters{
		HighBand: highBand,
		Band:     uint8(steps / carrierSteps),
		Carrier:  uint16(steps % carrierSteps),
	}, true
}

// MHz converts the registers back to the synthesized carrier frequency.
func (f FrequencyRegisters) MHz() float64 {
	divider := 10.0
	if f.HighBand {
		divider = 20.0
	}
	return divider * (float64(f.Band) + 24 + float64(f.Carrier)/carrierSteps)
}
