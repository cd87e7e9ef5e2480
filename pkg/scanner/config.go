package scanner

import (
	"fmt"
	"time"
)

// Default scanning parameters
const (
	// DefaultRSSIThreshold marks a channel busy (dBm)
	DefaultRSSIThreshold float32 = -90.0

	// DefaultDwellTime is the time spent listening on each channel
	DefaultDwellTime = 5 * time.Millisecond

	// DefaultSamples is the number of RSSI reads per dwell
	DefaultSamples = 5

	// DefaultScanInterval is the delay between scan cycles
	DefaultScanInterval = time.Second

	// DefaultChannelCount is the number of channels surveyed by default,
	// starting at channel 0
	DefaultChannelCount = 8
)

// ScanConfig defines runtime scanning parameters
type ScanConfig struct {
	Channels      []uint8       `json:"channels"`
	RSSIThreshold float32       `json:"rssi_threshold_dbm"`
	DwellTime     time.Duration `json:"dwell_time"`
	Samples       int           `json:"samples"`
	ScanInterval  time.Duration `json:"scan_interval"`
}

// DefaultConfig returns a ScanConfig with default values
func DefaultConfig() *ScanConfig {
	return &ScanConfig{
		Channels:      ChannelRange(0, DefaultChannelCount-1),
		RSSIThreshold: DefaultRSSIThreshold,
		DwellTime:     DefaultDwellTime,
		Samples:       DefaultSamples,
		ScanInterval:  DefaultScanInterval,
	}
}

// ChannelRange returns the channels first..last inclusive. An inverted
// range is empty.
func ChannelRange(first, last uint8) []uint8 {
	var chans []uint8
	for ch := int(first); ch <= int(last); ch++ {
		chans = append(chans, uint8(ch))
	}
	return chans
}

// Validate checks the configuration for errors
func (c *ScanConfig) Validate() error {
	if len(c.Channels) == 0 {
		return ErrNoChannels
	}
	if c.RSSIThreshold > 0 {
		return ErrInvalidThreshold
	}
	if c.DwellTime < time.Millisecond || c.DwellTime > 100*time.Millisecond {
		return ErrInvalidDwellTime
	}
	if c.Samples < 1 {
		return fmt.Errorf("%w: samples %d", ErrInvalidConfig, c.Samples)
	}
	if c.ScanInterval < 0 {
		return fmt.Errorf("%w: scan interval %v", ErrInvalidConfig, c.ScanInterval)
	}
	return nil
}
