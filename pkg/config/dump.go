package config

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/herlein/watertower/pkg/profiles"
	"github.com/herlein/watertower/pkg/registers"
	"github.com/herlein/watertower/pkg/si4432"
)

// ErrVerify indicates a register that did not read back as written
var ErrVerify = errors.New("register verification failed")

// DeviceDump holds the state of a transceiver at one instant
type DeviceDump struct {
	Bus       string              `json:"bus,omitempty"`
	Version   uint8               `json:"version"`
	Mode      string              `json:"mode"`
	RSSI      uint8               `json:"rssi"`
	Settings  si4432.Settings     `json:"settings"`
	Stats     si4432.Stats        `json:"stats"`
	Timestamp time.Time           `json:"timestamp"`
	Registers *registers.Snapshot `json:"registers"`
}

// DumpFromDevice reads every register of the device. The interrupt status
// registers clear on read, so a pending event is lost.
func DumpFromDevice(device *si4432.Device) (*DeviceDump, error) {
	version, err := device.Detect()
	if err != nil {
		return nil, err
	}
	mode, err := device.ReadMode()
	if err != nil {
		return nil, fmt.Errorf("failed to read mode: %w", err)
	}
	rssi, err := device.RSSI()
	if err != nil {
		return nil, fmt.Errorf("failed to read RSSI: %w", err)
	}

	snap, err := registers.ReadAll(device, device.Registers())
	if err != nil {
		return nil, fmt.Errorf("failed to read registers: %w", err)
	}

	return &DeviceDump{
		Version:   version,
		Mode:      mode.String(),
		RSSI:      rssi,
		Settings:  device.Settings(),
		Stats:     device.Stats(),
		Timestamp: snap.Timestamp,
		Registers: snap,
	}, nil
}

// ApplyToDevice programs settings and reads the registers back
func ApplyToDevice(device *si4432.Device, settings si4432.Settings) error {
	want, err := (&profiles.Profile{Name: "apply", Settings: settings}).ToRegisters()
	if err != nil {
		return err
	}

	if _, err := device.Configure(settings); err != nil {
		return fmt.Errorf("failed to configure device: %w", err)
	}

	m := device.Registers()
	for _, check := range []struct {
		f    registers.Field
		want []byte
	}{
		{m.FrequencyBand, want.FrequencyBand},
		{m.ModulationControl, want.Modulation},
		{m.TxDataRate, want.DataRate},
		{m.IFFilterBandwidth, []byte{want.IFFilter}},
		{m.ClockRecoveryTiming, want.ClockRecovery},
		{m.ChannelSelect, []byte{want.Channel}},
		{m.TransmitHeader, want.Signature},
		{m.CheckHeader, want.Signature},
	} {
		got, err := device.ReadBlock(check.f.Addr, int(check.f.Width))
		if err != nil {
			return fmt.Errorf("failed to read back %s: %w", check.f, err)
		}
		if !bytes.Equal(got, check.want) {
			return fmt.Errorf("%w: %s reads % X, wrote % X", ErrVerify, check.f, got, check.want)
		}
	}
	return nil
}
