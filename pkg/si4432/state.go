package si4432

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the value of operating mode and function control 1
type Mode uint8

// Mode bits
const (
	ModeReady    Mode = 0x01 // crystal oscillator on
	ModeTune     Mode = 0x02 // PLL on
	ModeReceive  Mode = 0x04
	ModeTransmit Mode = 0x08
	ModeReset    Mode = 0x80 // software register reset, self clearing
)

// String returns the set bits joined with "|", "Off" for no bits
func (m Mode) String() string {
	if m == 0 {
		return "Off"
	}
	var parts []string
	for _, b := range []struct {
		bit  Mode
		name string
	}{
		{ModeReady, "Ready"},
		{ModeTune, "Tune"},
		{ModeReceive, "Receive"},
		{ModeTransmit, "Transmit"},
		{ModeReset, "Reset"},
	} {
		if m&b.bit != 0 {
			parts = append(parts, b.name)
			m &^= b.bit
		}
	}
	if m != 0 {
		parts = append(parts, fmt.Sprintf("0x%02X", uint8(m)))
	}
	return strings.Join(parts, "|")
}

// Interrupt status 1 bits
const (
	IntCRCError    = 0x01
	IntPacketValid = 0x02
	IntPacketSent  = 0x04
)

// Interrupt status 2 bits
const (
	IntChipReady = 0x02
)

// Device status bits
const (
	StatusFIFOOverflow  = 0x80
	StatusFIFOUnderflow = 0x40
	statusFIFOError     = StatusFIFOOverflow | StatusFIFOUnderflow
)

// Operating mode and function control 2 bits
const (
	clearTxFIFO = 0x01
	clearRxFIFO = 0x02
)

// ChannelStepKHz is the hopping channel spacing programmed at boot
const ChannelStepKHz = 1000

type regWrite struct {
	addr  uint8
	value uint8
	what  string
}

// bootProgram is written after every reset, before the link settings.
func (d *Device) bootProgram() []regWrite {
	r := d.regs
	return []regWrite{
		{r.AFCTimingControl.Addr, 0x02, "AFC timing"},
		{r.AFCLimiter.Addr, 0xFF, "AFC limiter"},
		{r.AGCOverride.Addr, 0x60, "max gain"},
		{r.AFCGearshiftOverride.Addr, 0x3C, "AFC off"},
		{r.DataAccessControl.Addr, 0xAD, "packet handler, CRC-IBM"},
		{r.HeaderControl1.Addr, 0x0C, "check header 3 and 2"},
		{r.HeaderControl2.Addr, 0x22, "header 3 and 2, variable length"},
		{r.PreambleLength.Addr, 0x08, "preamble 32 bits"},
		{r.PreambleDetection.Addr, 0x3A, "preamble detect 28 bits"},
		{r.SyncWord.Addr, 0x2D, "sync word 3"},
		{r.SyncWord.Addr + 1, 0xD4, "sync word 2"},
		{r.TxPower.Addr, 0x1F, "max power"},
		{r.ChannelStepSize.Addr, ChannelStepKHz / 10, "channel step"},
	}
}

// SwitchMode writes the mode register
func (d *Device) SwitchMode(m Mode) error {
	if err := d.writeField(d.regs.OpControl1, uint8(m)); err != nil {
		return fmt.Errorf("failed to switch to %s: %w", m, err)
	}
	d.mode = m
	return nil
}

// ReadMode reads the mode register back from the chip
func (d *Device) ReadMode() (Mode, error) {
	v, err := d.readField(d.regs.OpControl1)
	if err != nil {
		return 0, err
	}
	return Mode(v), nil
}

// PowerOff raises SDN and waits for the chip to shut down
func (d *Device) PowerOff() error {
	if d.opts.Shutdown == nil {
		return nil
	}
	if err := d.opts.Shutdown.Out(true); err != nil {
		return fmt.Errorf("failed to raise SDN: %w", err)
	}
	d.mode = 0
	d.booted = false
	d.opts.Clock.Sleep(d.opts.PowerOffSettle)
	return nil
}

// PowerOn lowers SDN and waits for the oscillator to start
func (d *Device) PowerOn() error {
	if d.opts.Shutdown == nil {
		return nil
	}
	if err := d.opts.Shutdown.Out(false); err != nil {
		return fmt.Errorf("failed to lower SDN: %w", err)
	}
	d.opts.Clock.Sleep(d.opts.PowerOnSettle)
	return nil
}

// HardReset power cycles the chip through SDN, waits for power-on-reset,
// checks the device type and runs the boot program. Without a shutdown
// pin it performs a SoftReset.
func (d *Device) HardReset() error {
	if d.opts.Shutdown == nil {
		d.log.Debug("no shutdown pin, using soft reset")
		return d.SoftReset()
	}
	if err := d.PowerOff(); err != nil {
		return err
	}
	if err := d.PowerOn(); err != nil {
		return err
	}
	if err := d.waitPOR(hardResetPollInterval); err != nil {
		return err
	}
	return d.boot()
}

// SoftReset sets the software reset bit, waits for power-on-reset and runs
// the boot program.
func (d *Device) SoftReset() error {
	if err := d.SwitchMode(ModeReset); err != nil {
		return err
	}
	if err := d.waitPOR(softResetPollInterval); err != nil {
		return err
	}
	return d.boot()
}

func (d *Device) waitPOR(interval time.Duration) error {
	start := d.opts.Clock.Now()
	ok, err := d.pollUntil(d.opts.PORTimeout, interval, func() (bool, error) {
		v, err := d.readField(d.regs.IntStatus2)
		if err != nil {
			return false, err
		}
		return v&IntChipReady != 0, nil
	})
	if err != nil {
		return fmt.Errorf("failed to poll POR: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w after %v", ErrHardwareFault, d.opts.PORTimeout)
	}
	d.log.Debugf("POR complete after %v", d.opts.Clock.Now().Sub(start))
	d.mode = ModeReady
	return nil
}

// Detect reads the device type and version registers
func (d *Device) Detect() (version uint8, err error) {
	b, err := d.ReadBlock(d.regs.DeviceType.Addr, 2)
	if err != nil {
		return 0, fmt.Errorf("failed to read device type: %w", err)
	}
	if b[0] != d.regs.ExpectedDeviceType {
		return 0, fmt.Errorf("%w: type 0x%02X", ErrNotDetected, b[0])
	}
	return b[1], nil
}

func (d *Device) boot() error {
	version, err := d.Detect()
	if err != nil {
		return err
	}
	d.version = version

	for _, w := range d.bootProgram() {
		if err := d.WriteRegister(w.addr, w.value); err != nil {
			return fmt.Errorf("boot program (%s): %w", w.what, err)
		}
	}
	if _, err := d.Configure(d.settings); err != nil {
		return err
	}
	if err := d.SwitchMode(ModeReady); err != nil {
		return err
	}
	d.booted = true
	d.stats.resets.Add(1)
	d.log.WithField("version", version).Info("radio ready")
	return nil
}

// Ready reports whether a reset has completed since the last power off
func (d *Device) Ready() bool {
	return d.booted
}

// clearFIFO pulses the given clear bits in operating control 2
func (d *Device) clearFIFO(bits uint8) error {
	if err := d.writeField(d.regs.OpControl2, bits); err != nil {
		return fmt.Errorf("failed to clear FIFO: %w", err)
	}
	return d.writeField(d.regs.OpControl2, 0x00)
}

// ClearFIFOs empties both FIFOs
func (d *Device) ClearFIFOs() error {
	return d.clearFIFO(clearTxFIFO | clearRxFIFO)
}

// readInterrupts reads (and so clears) both interrupt status registers
func (d *Device) readInterrupts() (uint8, uint8, error) {
	b, err := d.ReadBlock(d.regs.IntStatus1.Addr, 2)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read interrupt status: %w", err)
	}
	return b[0], b[1], nil
}

// RSSI reads the received signal strength indicator
func (d *Device) RSSI() (uint8, error) {
	return d.readField(d.regs.RSSI)
}
