package si4432

import "time"

// pollUntil calls cond, sleeping interval between calls, until it reports
// true or timeout has elapsed. cond always runs at least once. A cond
// error ends the loop.
func (d *Device) pollUntil(timeout, interval time.Duration, cond func() (bool, error)) (bool, error) {
	clock := d.opts.Clock
	deadline := clock.Now().Add(timeout)
	for {
		done, err := cond()
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
		if !clock.Now().Before(deadline) {
			return false, nil
		}
		clock.Sleep(interval)
	}
}

// irqPending reports whether nIRQ is asserted. Without an IRQ pin, or when
// the pin cannot be read, it reports true so the caller reads the status
// registers.
func (d *Device) irqPending() bool {
	if d.opts.IRQ == nil {
		return true
	}
	high, err := d.opts.IRQ.Read()
	if err != nil {
		return true
	}
	return !high
}
