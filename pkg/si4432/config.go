package si4432

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/herlein/watertower/pkg/registers"
	"github.com/herlein/watertower/pkg/synth"
)

// SetFrequency programs the carrier frequency. An out of range frequency
// is ignored: the previous value stays and false is returned without error.
func (d *Device) SetFrequency(mhz float64) (bool, error) {
	f, ok := synth.Frequency(mhz)
	if !ok {
		d.log.Warnf("frequency %.3f MHz out of range, keeping %.3f MHz", mhz, d.settings.FrequencyMHz)
		return false, nil
	}
	if err := d.writeField(d.regs.FrequencyBand, f.Bytes()...); err != nil {
		return false, fmt.Errorf("failed to set frequency: %w", err)
	}
	d.settings.FrequencyMHz = mhz
	return true, nil
}

// SetBaudRate programs modulation, data rate, IF filter and clock recovery
// for kbps. An out of range rate is ignored like in SetFrequency.
func (d *Device) SetBaudRate(kbps int) (bool, error) {
	b, ok := synth.BaudRate(kbps)
	if !ok {
		d.log.Warnf("baud rate %d kbps out of range, keeping %d kbps", kbps, d.settings.BaudKbps)
		return false, nil
	}
	if !b.FilterMatched {
		d.log.Warnf("no IF filter wide enough for %d kHz, using 0x%02X", b.MinBandwidth, b.IFFilter)
	}
	for _, w := range []struct {
		name string
		f    registers.Field
		data []byte
	}{
		{"modulation", d.regs.ModulationControl, b.Modulation[:]},
		{"data rate", d.regs.TxDataRate, b.DataRate[:]},
		{"IF filter", d.regs.IFFilterBandwidth, []byte{b.IFFilter}},
		{"clock recovery", d.regs.ClockRecoveryTiming, b.Timing[:]},
	} {
		if err := d.writeField(w.f, w.data...); err != nil {
			return false, fmt.Errorf("failed to set %s: %w", w.name, err)
		}
	}
	d.settings.BaudKbps = kbps
	return true, nil
}

// SetChannel selects the hopping channel (step size set by the boot program)
func (d *Device) SetChannel(ch uint8) error {
	if err := d.writeField(d.regs.ChannelSelect, ch); err != nil {
		return fmt.Errorf("failed to set channel: %w", err)
	}
	d.settings.Channel = ch
	return nil
}

// SetCommsSignature sets the two header bytes sent with every packet and
// required on every received one.
func (d *Device) SetCommsSignature(sig uint16) error {
	b := []byte{byte(sig >> 8), byte(sig)}
	if err := d.writeField(d.regs.TransmitHeader, b...); err != nil {
		return fmt.Errorf("failed to set transmit header: %w", err)
	}
	if err := d.writeField(d.regs.CheckHeader, b...); err != nil {
		return fmt.Errorf("failed to set check header: %w", err)
	}
	d.settings.Signature = sig
	return nil
}

// Configure applies all four settings. Out of range frequency or baud rate
// values are skipped; the returned Settings is what the chip now uses.
func (d *Device) Configure(s Settings) (Settings, error) {
	if _, err := d.SetFrequency(s.FrequencyMHz); err != nil {
		return d.settings, err
	}
	if _, err := d.SetBaudRate(s.BaudKbps); err != nil {
		return d.settings, err
	}
	if err := d.SetChannel(s.Channel); err != nil {
		return d.settings, err
	}
	if err := d.SetCommsSignature(s.Signature); err != nil {
		return d.settings, err
	}
	d.log.WithFields(logrus.Fields{
		"frequency_mhz": d.settings.FrequencyMHz,
		"baud_kbps":     d.settings.BaudKbps,
		"channel":       d.settings.Channel,
		"signature":     fmt.Sprintf("0x%04X", d.settings.Signature),
	}).Debug("link configured")
	return d.settings, nil
}
