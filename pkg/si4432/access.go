package si4432

import (
	"fmt"

	"github.com/herlein/watertower/pkg/registers"
)

// SPI address byte flags
const (
	writeFlag = 0x80
	addrMask  = 0x7F
	readFill  = 0xFF
)

// WriteBlock writes data to consecutive registers starting at addr in one
// transaction. Writes to the FIFO address stay on the FIFO.
func (d *Device) WriteBlock(addr uint8, data []byte) error {
	if addr == d.regs.FIFO.Addr && len(data) > d.regs.FIFODepth {
		return ErrFIFOLength
	}
	w := make([]byte, 1+len(data))
	w[0] = addr | writeFlag
	copy(w[1:], data)
	if err := d.bus.Tx(w, nil); err != nil {
		return fmt.Errorf("failed to write 0x%02X: %w", addr, err)
	}
	d.log.WithField("reg", fmt.Sprintf("0x%02X", addr)).Tracef("write % X", data)
	return nil
}

// ReadBlock reads n consecutive registers starting at addr in one
// transaction.
func (d *Device) ReadBlock(addr uint8, n int) ([]byte, error) {
	if addr&addrMask == d.regs.FIFO.Addr && n > d.regs.FIFODepth {
		return nil, ErrFIFOLength
	}
	w := make([]byte, 1+n)
	w[0] = addr & addrMask
	for i := 1; i < len(w); i++ {
		w[i] = readFill
	}
	r := make([]byte, len(w))
	if err := d.bus.Tx(w, r); err != nil {
		return nil, fmt.Errorf("failed to read 0x%02X: %w", addr, err)
	}
	d.log.WithField("reg", fmt.Sprintf("0x%02X", addr)).Tracef("read % X", r[1:])
	return r[1:], nil
}

// WriteRegister writes one register
func (d *Device) WriteRegister(addr, value uint8) error {
	return d.WriteBlock(addr, []byte{value})
}

// ReadRegister reads one register
func (d *Device) ReadRegister(addr uint8) (uint8, error) {
	b, err := d.ReadBlock(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Device) writeField(f registers.Field, data ...byte) error {
	if f.Addr != d.regs.FIFO.Addr && len(data) != int(f.Width) {
		return fmt.Errorf("%s takes %d bytes, got %d", f, f.Width, len(data))
	}
	return d.WriteBlock(f.Addr, data)
}

func (d *Device) readField(f registers.Field) (uint8, error) {
	return d.ReadRegister(f.Addr)
}
