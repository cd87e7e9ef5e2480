package profiles

import "fmt"

// 433 MHz Band Profile Factories
// The towers ship on 433 MHz; these are the presets most installs use.

// New433 creates a 433 MHz profile at the given data rate
func New433(kbps int) *Profile {
	return newProfile("433", 433, kbps,
		fmt.Sprintf("433 MHz GFSK at %d kbps", kbps))
}

// NewLongRange creates a low rate profile for towers far from the station.
// A 2 kbps rate selects the 15 kHz deviation and the narrowest IF filter.
func NewLongRange(band string) *Profile {
	mhz := bandCenter(band)
	p := newProfile(band, mhz, 2, fmt.Sprintf("%s MHz long-range GFSK at 2 kbps", band))
	p.Name = fmt.Sprintf("%s-2k-long", band)
	return p
}

// bandCenter returns the carrier used for a band name, 433 MHz when unknown
func bandCenter(band string) float64 {
	switch band {
	case "315":
		return 315
	case "868":
		return 868.3
	case "915":
		return 915
	default:
		return 433
	}
}

func profiles433() []*Profile {
	return []*Profile{
		New433(20),
		New433(100),
		NewLongRange("433"),
	}
}
