package watertower

import "time"

// Addressing
const (
	IdentityBase = 0x10 // identity of tower 0
	MaxQuantity  = 6    // towers per radio
	ProtocolTag  = 0    // level request/reply
)

// Tower defaults
const (
	DefaultHeightCM       = 200
	DefaultReservedCM     = 10
	DefaultSampleInterval = 10 * time.Second
	DefaultFirstTrigger   = 3 * time.Second
	DefaultMissedLimit    = 3
)

// Echo sanity limits in microseconds
const (
	MinEchoMicros = 5
	MaxEchoMicros = 60000
)

// SpeedOfSound in m/s
const SpeedOfSound = 340

// Level smoothing defaults
const (
	DefaultSmoothThresholdCM = 5.0  // above this jump, adapt fast
	DefaultKFast             = 0.6  // coefficient for large changes
	DefaultKSlow             = 0.15 // coefficient for small changes
)
