// Package ch341 drives the transceiver through a CH341A USB-to-SPI bridge.
//
// Chip select is D0 and the shutdown line is D1. Data is shifted by the
// SPI stream command, which the bridge sends least significant bit first,
// so every byte is mirrored on the way in and out.
package ch341

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/herlein/watertower/pkg/si4432"
)

// transferTimeout bounds a single bulk read
const transferTimeout = time.Second

// Device represents one CH341A bridge
type Device struct {
	usbDevice    *gousb.Device
	usbConfig    *gousb.Config
	usbInterface *gousb.Interface
	epIn         *gousb.InEndpoint
	epOut        *gousb.OutEndpoint
	Serial       string
	Manufacturer string
	Product      string
	Bus          int
	Address      int

	mu      sync.Mutex
	outputs byte
}

// FindAllDevices opens every connected CH341A
func FindAllDevices(context *gousb.Context) ([]*Device, error) {
	devices := []*Device{}

	usbDevices, err := context.OpenDevices(func(descriptor *gousb.DeviceDesc) bool {
		return descriptor.Vendor == gousb.ID(VendorID) && descriptor.Product == gousb.ID(ProductID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	for _, usbDev := range usbDevices {
		device, err := wrapDevice(usbDev)
		if err != nil {
			usbDev.Close()
			continue
		}
		devices = append(devices, device)
	}

	return devices, nil
}

func wrapDevice(usbDev *gousb.Device) (*Device, error) {
	manufacturer, _ := usbDev.Manufacturer()
	product, _ := usbDev.Product()
	serial, _ := usbDev.SerialNumber()

	usbDev.SetAutoDetach(true)

	config, err := usbDev.Config(1)
	if err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}

	iface, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		return nil, fmt.Errorf("failed to claim interface: %w", err)
	}

	epIn, err := iface.InEndpoint(EndpointIn)
	if err != nil {
		iface.Close()
		config.Close()
		return nil, fmt.Errorf("failed to get IN endpoint: %w", err)
	}

	epOut, err := iface.OutEndpoint(EndpointOut)
	if err != nil {
		iface.Close()
		config.Close()
		return nil, fmt.Errorf("failed to get OUT endpoint: %w", err)
	}

	desc := usbDev.Desc
	device := &Device{
		usbDevice:    usbDev,
		usbConfig:    config,
		usbInterface: iface,
		epIn:         epIn,
		epOut:        epOut,
		Serial:       serial,
		Manufacturer: manufacturer,
		Product:      product,
		Bus:          desc.Bus,
		Address:      desc.Address,
		outputs:      idleOutputs,
	}

	if err := device.setup(); err != nil {
		device.Close()
		return nil, err
	}
	return device, nil
}

// setup selects the stream clock and drives the idle levels
func (d *Device) setup() error {
	if _, err := d.epOut.Write(speedPacket(I2C750K)); err != nil {
		return fmt.Errorf("failed to set stream speed: %w", err)
	}
	if _, err := d.epOut.Write(uioPacket(d.outputs)); err != nil {
		return fmt.Errorf("failed to set pin directions: %w", err)
	}
	return nil
}

// String returns "bus:addr serial"
func (d *Device) String() string {
	return fmt.Sprintf("%d:%d %s", d.Bus, d.Address, d.Serial)
}

// Tx implements si4432.Bus. r, when not nil, must be as long as w.
func (d *Device) Tx(w, r []byte) error {
	if r != nil && len(r) != len(w) {
		return fmt.Errorf("ch341: read buffer of %d bytes for a %d byte transfer", len(r), len(w))
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.epOut.Write(uioPacket(d.outputs &^ PinCS0)); err != nil {
		return fmt.Errorf("failed to assert chip select: %w", err)
	}
	err := d.stream(w, r)
	if _, csErr := d.epOut.Write(uioPacket(d.outputs | PinCS0)); csErr != nil && err == nil {
		err = fmt.Errorf("failed to release chip select: %w", csErr)
	}
	return err
}

func (d *Device) stream(w, r []byte) error {
	offset := 0
	buf := make([]byte, PacketLength)
	for _, p := range spiPackets(w) {
		if _, err := d.epOut.Write(p); err != nil {
			return fmt.Errorf("failed to write SPI packet: %w", err)
		}
		n := len(p) - 1
		for got := 0; got < n; {
			ctx, cancel := context.WithTimeout(context.Background(), transferTimeout)
			m, err := d.epIn.ReadContext(ctx, buf[got:n])
			cancel()
			if err != nil {
				return fmt.Errorf("failed to read SPI packet: %w", err)
			}
			got += m
		}
		if r != nil {
			for i := 0; i < n; i++ {
				r[offset+i] = ReverseBits(buf[i])
			}
		}
		offset += n
	}
	return nil
}

// setPin drives one of the spare output lines
func (d *Device) setPin(mask byte, high bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if high {
		d.outputs |= mask
	} else {
		d.outputs &^= mask
	}
	if _, err := d.epOut.Write(uioPacket(d.outputs)); err != nil {
		return fmt.Errorf("failed to drive pins 0x%02X: %w", d.outputs, err)
	}
	return nil
}

// ShutdownPin returns the D1 line as the SDN pin
func (d *Device) ShutdownPin() si4432.PinOutput {
	return si4432.PinOutputFunc(func(high bool) error {
		return d.setPin(PinD1, high)
	})
}

// Close shuts the transceiver down and releases the bridge
func (d *Device) Close() error {
	if d.epOut != nil {
		d.setPin(PinD1, true)
	}

	if d.usbInterface != nil {
		d.usbInterface.Close()
	}
	if d.usbConfig != nil {
		d.usbConfig.Close()
	}
	if d.usbDevice != nil {
		return d.usbDevice.Close()
	}
	return nil
}
