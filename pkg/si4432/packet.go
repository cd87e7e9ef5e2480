package si4432

import (
	"fmt"
	"time"
)

// Interrupt enable masks
const (
	enableTransmit = IntPacketSent
	enableReceive  = IntPacketValid | IntCRCError
)

// Transmit sends one packet and, when expectReply is set, waits up to
// replyTimeout for the answer. There are no retries.
//
// A transmit that does not complete within Options.TransmitTimeout leaves
// the chip in Ready and returns ErrTransmitTimeout. A missing reply
// returns ErrReplyTimeout. After a successful send the chip stays in
// Ready|Tune.
func (d *Device) Transmit(packet []byte, expectReply bool, replyTimeout time.Duration) ([]byte, error) {
	if !d.booted {
		return nil, ErrNotReady
	}
	if len(packet) == 0 {
		return nil, ErrEmptyPacket
	}
	if len(packet) > d.regs.FIFODepth {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLong, len(packet))
	}

	if err := d.loadTransmitFIFO(packet); err != nil {
		return nil, err
	}
	if err := d.SwitchMode(ModeReady | ModeTransmit); err != nil {
		return nil, err
	}

	sent, err := d.pollUntil(d.opts.TransmitTimeout, d.opts.PollInterval, func() (bool, error) {
		if !d.irqPending() {
			return false, nil
		}
		s1, _, err := d.readInterrupts()
		if err != nil {
			return false, err
		}
		return s1&IntPacketSent != 0, nil
	})
	if err != nil {
		return nil, err
	}
	if !sent {
		d.stats.transmitTimeouts.Add(1)
		d.log.Debugf("transmit timeout after %v", d.opts.TransmitTimeout)
		return nil, d.recoverTransmit()
	}

	d.stats.transmitted.Add(1)
	if err := d.SwitchMode(ModeReady | ModeTune); err != nil {
		return nil, err
	}
	if !expectReply {
		return nil, nil
	}

	ok, err := d.WaitForPacket(replyTimeout)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrReplyTimeout
	}
	return d.PacketReceived()
}

func (d *Device) loadTransmitFIFO(packet []byte) error {
	if err := d.clearFIFO(clearTxFIFO); err != nil {
		return err
	}
	if err := d.writeField(d.regs.TransmitPacketLength, uint8(len(packet))); err != nil {
		return fmt.Errorf("failed to set packet length: %w", err)
	}
	if err := d.writeField(d.regs.FIFO, packet...); err != nil {
		return fmt.Errorf("failed to fill transmit FIFO: %w", err)
	}
	if err := d.writeField(d.regs.IntEnable1, enableTransmit); err != nil {
		return err
	}
	if err := d.writeField(d.regs.IntEnable2, 0x00); err != nil {
		return err
	}
	_, _, err := d.readInterrupts()
	return err
}

// recoverTransmit returns the chip to Ready after a transmit timeout and
// clears the FIFOs if either overflowed or underflowed.
func (d *Device) recoverTransmit() error {
	if err := d.SwitchMode(ModeReady); err != nil {
		return err
	}
	status, err := d.readField(d.regs.DeviceStatus)
	if err != nil {
		return err
	}
	if status&statusFIFOError != 0 {
		d.stats.fifoErrors.Add(1)
		d.log.Warnf("FIFO error after transmit timeout, status 0x%02X", status)
		if err := d.ClearFIFOs(); err != nil {
			return err
		}
	}
	return ErrTransmitTimeout
}

// StartListening clears the receive FIFO, enables the packet valid and CRC
// error interrupts and enters Ready|Receive.
func (d *Device) StartListening() error {
	if !d.booted {
		return ErrNotReady
	}
	if err := d.clearFIFO(clearRxFIFO); err != nil {
		return err
	}
	if err := d.writeField(d.regs.IntEnable1, enableReceive); err != nil {
		return err
	}
	if err := d.writeField(d.regs.IntEnable2, 0x00); err != nil {
		return err
	}
	if _, _, err := d.readInterrupts(); err != nil {
		return err
	}
	return d.SwitchMode(ModeReady | ModeReceive)
}

// WaitForPacket starts listening and polls until a valid packet arrives or
// timeout elapses. Packets failing CRC are dropped and listening resumes.
// On timeout the chip is left in Ready with an empty receive FIFO.
func (d *Device) WaitForPacket(timeout time.Duration) (bool, error) {
	if err := d.StartListening(); err != nil {
		return false, err
	}
	ok, err := d.pollUntil(timeout, d.opts.PollInterval, d.IsPacketReceived)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	d.stats.replyTimeouts.Add(1)
	d.log.Debugf("receive timeout after %v", timeout)
	if err := d.SwitchMode(ModeReady); err != nil {
		return false, err
	}
	return false, d.clearFIFO(clearRxFIFO)
}

// IsPacketReceived polls once. A valid packet moves the chip to Ready|Tune
// and reports true. A CRC error clears the receive FIFO, re-enters receive
// mode and reports false.
func (d *Device) IsPacketReceived() (bool, error) {
	if !d.irqPending() {
		return false, nil
	}
	s1, _, err := d.readInterrupts()
	if err != nil {
		return false, err
	}
	switch {
	case s1&IntPacketValid != 0:
		return true, d.SwitchMode(ModeReady | ModeTune)
	case s1&IntCRCError != 0:
		d.stats.crcErrors.Add(1)
		d.log.Debug("CRC error, packet dropped")
		if err := d.SwitchMode(ModeReady); err != nil {
			return false, err
		}
		if err := d.clearFIFO(clearRxFIFO); err != nil {
			return false, err
		}
		return false, d.SwitchMode(ModeReady | ModeReceive)
	}
	return false, nil
}

// PacketReceived reads the received packet out of the FIFO, then clears
// the receive FIFO.
func (d *Device) PacketReceived() ([]byte, error) {
	n, err := d.readField(d.regs.ReceivedPacketLength)
	if err != nil {
		return nil, fmt.Errorf("failed to read packet length: %w", err)
	}
	if int(n) > d.regs.FIFODepth {
		d.stats.fifoErrors.Add(1)
		if err := d.clearFIFO(clearRxFIFO); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: received length %d", ErrFIFOLength, n)
	}
	var packet []byte
	if n > 0 {
		packet, err = d.ReadBlock(d.regs.FIFO.Addr, int(n))
		if err != nil {
			return nil, fmt.Errorf("failed to read receive FIFO: %w", err)
		}
	}
	if err := d.clearFIFO(clearRxFIFO); err != nil {
		return nil, err
	}
	d.stats.received.Add(1)
	return packet, nil
}
