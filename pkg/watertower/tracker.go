package watertower

// linkTracker decides connectivity with hysteresis: one reply connects, a
// run of missed triggers disconnects.
type linkTracker struct {
	holdMax     int
	holdCounter int
	connected   bool
}

func newLinkTracker(missedLimit int) *linkTracker {
	if missedLimit < 1 {
		missedLimit = 1
	}
	return &linkTracker{holdMax: missedLimit}
}

// replied records a reply. It returns true on the transition to connected.
func (t *linkTracker) replied() bool {
	t.holdCounter = t.holdMax
	if t.connected {
		return false
	}
	t.connected = true
	return true
}

// missed records a trigger that got no reply. It returns true on the
// transition to disconnected.
func (t *linkTracker) missed() bool {
	if t.holdCounter > 0 {
		t.holdCounter--
	}
	if t.holdCounter == 0 && t.connected {
		t.connected = false
		return true
	}
	return false
}
