package scanner

import "time"

// ChannelReading is the signal level measured on one hopping channel
type ChannelReading struct {
	Channel      uint8   `json:"channel"`
	FrequencyMHz float64 `json:"frequency_mhz"`
	RSSI         float32 `json:"rssi"`      // raw register value, averaged
	PeakRSSI     uint8   `json:"peak_rssi"` // highest raw sample
	DBm          float32 `json:"dbm"`
}

// ScanResult holds the result of a single scan cycle
type ScanResult struct {
	Timestamp time.Time        `json:"timestamp"`
	Readings  []ChannelReading `json:"readings"`
}

// RSSIToDBm converts a raw Si4432 RSSI register value to an approximate
// input power. The register climbs about 0.5 dB per count from -120 dBm.
func RSSIToDBm(rssi float32) float32 {
	return rssi*0.5 - 120.0
}
