// Package bus opens the SPI backend named by the configuration file and
// hands back everything the driver needs: the bus and its control pins.
package bus

import (
	"fmt"

	"github.com/google/gousb"
	"github.com/sirupsen/logrus"

	"github.com/herlein/watertower/pkg/bus/buspirate"
	"github.com/herlein/watertower/pkg/bus/ch341"
	"github.com/herlein/watertower/pkg/bus/spidev"
	"github.com/herlein/watertower/pkg/config"
	"github.com/herlein/watertower/pkg/link"
	"github.com/herlein/watertower/pkg/si4432"
	"github.com/herlein/watertower/pkg/simradio"
)

// Handle is an open backend
type Handle struct {
	Kind     string
	Name     string
	Bus      si4432.Bus
	Shutdown si4432.PinOutput // nil when the backend has no SDN line
	IRQ      si4432.PinInput  // nil when the backend has no nIRQ line

	// Sim is the simulated chip of the "sim" backend
	Sim *simradio.Chip

	closers []func() error
}

// Close releases the backend
func (h *Handle) Close() error {
	var first error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	h.closers = nil
	return first
}

// Open opens the backend described by the bus section of f
func Open(f *config.File) (*Handle, error) {
	c := f.Bus
	h := &Handle{Kind: f.BusKind(), Name: c.Port}

	switch h.Kind {
	case config.BusSpidev:
		name := c.Port
		if name == "" {
			name = config.DefaultSpidev
		}
		b, err := spidev.Open(name, f.BusSpeedHz())
		if err != nil {
			return nil, err
		}
		h.Bus, h.Name = b, b.String()
		h.closers = append(h.closers, b.Close)
		if c.Shutdown != "" {
			if h.Shutdown, err = spidev.OutputPin(c.Shutdown); err != nil {
				h.Close()
				return nil, err
			}
		}
		if c.IRQ != "" {
			if h.IRQ, err = spidev.InputPin(c.IRQ); err != nil {
				h.Close()
				return nil, err
			}
		}

	case config.BusCH341:
		context := gousb.NewContext()
		d, err := ch341.SelectDevice(context, ch341.DeviceSelector(c.Port))
		if err != nil {
			context.Close()
			return nil, err
		}
		h.Bus, h.Name, h.Shutdown = d, d.String(), d.ShutdownPin()
		h.closers = append(h.closers, context.Close, d.Close)

	case config.BusBusPirate:
		b, err := buspirate.Open(c.Port, f.BusSpeedHz())
		if err != nil {
			return nil, err
		}
		h.Bus, h.Shutdown = b, b.ShutdownPin()
		h.closers = append(h.closers, b.Close)

	case config.BusSim:
		chip := simradio.New()
		h.Bus, h.Shutdown, h.IRQ, h.Sim = chip, chip, chip, chip
		h.Name = "simulated Si4432"

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBus, c.Kind)
	}
	return h, nil
}

// NewDevice wraps the backend in a driver configured by f
func (h *Handle) NewDevice(f *config.File, log logrus.FieldLogger) (*si4432.Device, error) {
	settings, err := f.ToSettings()
	if err != nil {
		return nil, err
	}
	opts := f.ToDeviceOptions()
	opts.Shutdown = h.Shutdown
	opts.IRQ = h.IRQ
	opts.Logger = log
	return si4432.New(h.Bus, settings, opts), nil
}

// NewRadio wraps the backend in a driver and a link owning it
func (h *Handle) NewRadio(f *config.File, log logrus.FieldLogger) (*link.Radio, error) {
	dev, err := h.NewDevice(f, log)
	if err != nil {
		return nil, err
	}
	opts := f.ToLinkOptions()
	opts.Logger = log
	return link.New(dev, opts)
}
