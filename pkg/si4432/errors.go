package si4432

import "errors"

// Sentinel errors returned by the driver. Bus failures are wrapped and
// returned as is.
var (
	ErrFIFOLength      = errors.New("FIFO transfer longer than the FIFO")
	ErrPacketTooLong   = errors.New("packet does not fit in the transmit FIFO")
	ErrEmptyPacket     = errors.New("packet is empty")
	ErrTransmitTimeout = errors.New("packet sent interrupt not seen before the transmit deadline")
	ErrReplyTimeout    = errors.New("no valid packet received before the reply deadline")
	ErrHardwareFault   = errors.New("chip did not report power-on-reset complete")
	ErrNotDetected     = errors.New("device type register does not match an Si443x")
	ErrNotReady        = errors.New("device has not been reset")
)
