// Package spidev connects the transceiver through a Linux spidev port and
// sysfs/gpiochip lines, using the periph.io host drivers.
package spidev

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/herlein/watertower/pkg/si4432"
)

// ErrPinNotFound indicates a GPIO name the host does not know
var ErrPinNotFound = errors.New("gpio pin not found")

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph host drivers. Safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	return initErr
}

// Bus is an open spidev port configured for the Si4432 (mode 0, 8 bits)
type Bus struct {
	port spi.PortCloser
	conn spi.Conn
}

// Open opens the spidev port name ("" for the first port, or e.g.
// "/dev/spidev0.0" or "SPI0.0") at speedHz.
func Open(name string, speedHz int64) (*Bus, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", name, err)
	}
	conn, err := port.Connect(physic.Frequency(speedHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to configure SPI port %q: %w", name, err)
	}
	return &Bus{port: port, conn: conn}, nil
}

// Tx implements si4432.Bus with one chip select assertion per call
func (b *Bus) Tx(w, r []byte) error {
	return b.conn.Tx(w, r)
}

// String returns the port name
func (b *Bus) String() string {
	return b.port.String()
}

// Close releases the port
func (b *Bus) Close() error {
	return b.port.Close()
}

// OutputPin returns the GPIO called name as a push-pull output, driven low
func OutputPin(name string) (si4432.PinOutput, error) {
	p, err := pinByName(name)
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to configure %s as output: %w", name, err)
	}
	return si4432.PinOutputFunc(func(high bool) error {
		return p.Out(gpio.Level(high))
	}), nil
}

// InputPin returns the GPIO called name as an input with pull-up, for the
// open-drain nIRQ line.
func InputPin(name string) (si4432.PinInput, error) {
	p, err := pinByName(name)
	if err != nil {
		return nil, err
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("failed to configure %s as input: %w", name, err)
	}
	return si4432.PinInputFunc(func() (bool, error) {
		return bool(p.Read()), nil
	}), nil
}

func pinByName(name string) (gpio.PinIO, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrPinNotFound, name)
	}
	return p, nil
}
