package synth

import "math"

// IFFilter is one row of the IF filter bandwidth table: the narrowest
// filter whose bandwidth (in 100 Hz units) covers Threshold.
type IFFilter struct {
	Threshold int
	Value     uint8
}

// IFFilterTable lists the usable IF filter settings in ascending
// bandwidth order. Read-only.
var IFFilterTable = [...]IFFilter{
	{322, 0x26},
	{3355, 0x88},
	{3618, 0x89},
	{4202, 0x8A},
	{4684, 0x8B},
	{5188, 0x8C},
	{5770, 0x8D},
	{6207, 0x8E},
}

// SelectIFFilter returns the first filter whose threshold is at least
// minBandwidthKHz*10. When no entry is wide enough the widest entry is
// returned together with false.
func SelectIFFilter(minBandwidthKHz int) (IFFilter, bool) {
	for _, f := range IFFilterTable {
		if f.Threshold >= minBandwidthKHz*10 {
			return f, true
		}
	}
	return IFFilterTable[len(IFFilterTable)-1], false
}

// Modem setting constants
const (
	lowBaudLimit       = 30 // below this the low data rate (txdtrtscale) mode is used
	narrowDevLimit     = 10 // at or below this the 15 kHz deviation is used
	narrowDeviationKHz = 15
	wideDeviationKHz   = 150
	maxCRGain          = 0x7FF
)

// BaudRegisters holds every register value derived from a data rate.
type BaudRegisters struct {
	Kbps int

	// Derived quantities, kept for diagnostics
	FreqDevKHz     int
	LowBaud        bool
	MinBandwidth   int
	FilterMatched  bool
	Dwn3Bypass     uint8
	NdecExp        uint8
	RxOversampling uint16
	NCOffset       uint32
	CRGain         uint16
	CRMultiplier   uint8

	Modulation [3]byte // registers 0x70..0x72
	DataRate   [2]byte // registers 0x6E..0x6F, big endian
	IFFilter   uint8   // register 0x1C
	Timing     [6]byte // registers 0x20..0x25
}

// BaudRate derives the modem, filter and clock recovery settings for kbps.
// It reports false, and returns the zero value, when kbps is outside
// [1, 256].
func BaudRate(kbps int) (BaudRegisters, bool) {
	if kbps < MinBaudKbps || kbps > MaxBaudKbps {
		return BaudRegisters{}, false
	}
	r := BaudRegisters{Kbps: kbps}

	r.FreqDevKHz = wideDeviationKHz
	if kbps <= narrowDevLimit {
		r.FreqDevKHz = narrowDeviationKHz
	}
	r.LowBaud = kbps < lowBaudLimit

	// FIFO mode, GFSK, data rate scaling on or off
	mode1 := byte(0x0C)
	if r.LowBaud {
		mode1 = 0x4C
	}
	r.Modulation = [3]byte{
		mode1,
		0x23,
		byte(math.Round(float64(r.FreqDevKHz) * 1000.0 / 625.0)),
	}

	scale := 65536.0
	if r.LowBaud {
		scale = 2097152.0
	}
	dataRate := uint16(math.Round(float64(kbps) * scale / 1000.0))
	r.DataRate = [2]byte{byte(dataRate >> 8), byte(dataRate)}

	r.MinBandwidth = 2*r.FreqDevKHz + kbps
	filter, ok := SelectIFFilter(r.MinBandwidth)
	r.FilterMatched = ok
	r.IFFilter = filter.Value

	if r.IFFilter&0x80 != 0 {
		r.Dwn3Bypass = 1
	}
	r.NdecExp = (r.IFFilter >> 4) & 0x07

	decimation := 500.0 * float64(1+2*int(r.Dwn3Bypass))
	r.RxOversampling = uint16(math.Round(decimation /
		(math.Pow(2, float64(r.NdecExp)-3) * float64(kbps))))
	r.NCOffset = uint32(math.Ceil(float64(kbps) *
		math.Pow(2, float64(r.NdecExp)+20) / decimation))

	gain := 2 + 65535*int64(kbps)/(int64(r.RxOversampling)*int64(r.FreqDevKHz))
	if gain > maxCRGain {
		gain = maxCRGain
	}
	r.CRGain = uint16(gain)
	r.CRMultiplier = 0

	r.Timing = [6]byte{
		byte(r.RxOversampling),
		byte((r.RxOversampling&0x0700)>>3) | byte((r.NCOffset>>16)&0x0F),
		byte(r.NCOffset >> 8),
		byte(r.NCOffset),
		byte((r.CRGain&0x0700)>>8) | r.CRMultiplier,
		byte(r.CRGain),
	}
	return r, true
}
