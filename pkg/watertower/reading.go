package watertower

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Reading is one processed sensor sample
type Reading struct {
	Tower      int       `json:"tower"`
	Time       time.Time `json:"time"`
	EchoMicros uint32    `json:"echo_us"`
	DistanceCM float64   `json:"distance_cm"` // sensor to water surface
	LevelCM    float64   `json:"level_cm"`    // water depth, clamped to [0, height]
	Percent    int       `json:"percent"`
	SmoothedCM float64   `json:"smoothed_cm"`
}

// DecodeEcho parses the 4 byte little endian echo time
func DecodeEcho(payload []byte) (uint32, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("%w: got %d", ErrBadPayload, len(payload))
	}
	return binary.LittleEndian.Uint32(payload), nil
}

// EncodeEcho is the inverse of DecodeEcho
func EncodeEcho(us uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, us)
	return b
}

// ValidEcho reports whether us is inside the sensor's measuring range
func ValidEcho(us uint32) bool {
	return us >= MinEchoMicros && us <= MaxEchoMicros
}

// DistanceCM converts a round trip echo time to a one way distance:
// (us/2) * 340 m/s, in centimetres.
func DistanceCM(us uint32) float64 {
	return float64(us) / 2 * SpeedOfSound * 100 / 1e6
}

// EchoMicros is the inverse of DistanceCM, rounded to whole microseconds
func EchoMicros(distanceCM float64) uint32 {
	if distanceCM <= 0 {
		return 0
	}
	return uint32(math.Round(distanceCM * 2 * 1e6 / (SpeedOfSound * 100)))
}

// Level returns the water depth for a distance, clamped to [0, heightCM],
// and the fill percentage.
func Level(distanceCM float64, heightCM int) (float64, int) {
	h := float64(heightCM)
	level := h - distanceCM
	if level < 0 {
		level = 0
	}
	if level > h {
		level = h
	}
	if heightCM <= 0 {
		return 0, 0
	}
	return level, int(level * 100 / h)
}
