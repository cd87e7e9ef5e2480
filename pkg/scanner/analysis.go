package scanner

// Quietest returns the reading with the lowest average level. Ties go to
// the lower channel. ok is false for an empty result.
func (r *ScanResult) Quietest() (reading ChannelReading, ok bool) {
	for i, c := range r.Readings {
		if i == 0 || c.RSSI < reading.RSSI {
			reading = c
		}
	}
	return reading, len(r.Readings) > 0
}

// Busiest returns the reading with the highest average level
func (r *ScanResult) Busiest() (reading ChannelReading, ok bool) {
	for i, c := range r.Readings {
		if i == 0 || c.RSSI > reading.RSSI {
			reading = c
		}
	}
	return reading, len(r.Readings) > 0
}

// AverageDBm calculates the average level across all channels
func (r *ScanResult) AverageDBm() float32 {
	if len(r.Readings) == 0 {
		return -200.0
	}
	var sum float32
	for _, c := range r.Readings {
		sum += c.DBm
	}
	return sum / float32(len(r.Readings))
}

// Busy returns the channels at or above thresholdDBm
func (r *ScanResult) Busy(thresholdDBm float32) []ChannelReading {
	var busy []ChannelReading
	for _, c := range r.Readings {
		if c.DBm >= thresholdDBm {
			busy = append(busy, c)
		}
	}
	return busy
}

// Spread returns the difference between the busiest and quietest channel
func (r *ScanResult) Spread() float32 {
	hi, ok := r.Busiest()
	if !ok {
		return 0
	}
	lo, _ := r.Quietest()
	return hi.DBm - lo.DBm
}
