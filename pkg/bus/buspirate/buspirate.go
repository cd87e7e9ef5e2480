// Package buspirate drives the transceiver through a Bus Pirate in binary
// SPI mode, over its USB serial port.
//
// The Bus Pirate's CS line is nSEL and its AUX line is SDN. Transfers of
// any length are split into bulk transfers of at most 16 bytes under a
// single chip select assertion.
package buspirate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/herlein/watertower/pkg/si4432"
)

// Binary mode commands
const (
	cmdReset       = 0x00 // from the terminal: enter bitbang mode
	cmdEnterSPI    = 0x01
	cmdCSLow       = 0x02
	cmdCSHigh      = 0x03
	cmdExit        = 0x0F // leave binary mode, back to the terminal
	cmdBulk        = 0x10 // | (n-1), n in 1..16
	cmdPeripherals = 0x40 // | power, pull-ups, AUX, CS
	cmdSpeed       = 0x60 // | speed index
	cmdConfig      = 0x80 // | output type, idle, edge, sample
)

const (
	peripheralPower = 0x08
	peripheralAUX   = 0x02
	peripheralCS    = 0x01

	// 3.3 V outputs, clock idle low, data changes on active to idle: mode 0
	spiMode0 = 0x08 | 0x02

	bulkMax   = 16
	ack       = 0x01
	bbioTries = 20
)

// Banners
var (
	bannerBBIO = []byte("BBIO1")
	bannerSPI  = []byte("SPI1")
)

// Errors
var (
	// ErrNoResponse means a banner or reply never arrived
	ErrNoResponse = errors.New("bus pirate did not answer")
	// ErrNoAck means a command was answered with something other than 0x01
	ErrNoAck = errors.New("bus pirate refused the command")
)

// Speeds in Hz, indexed by the speed command argument
var Speeds = [...]int64{30e3, 125e3, 250e3, 1e6, 2e6, 2.6e6, 4e6, 8e6}

// SpeedIndex returns the fastest speed not above hz, 30 kHz at least
func SpeedIndex(hz int64) byte {
	idx := 0
	for i, s := range Speeds {
		if s <= hz {
			idx = i
		}
	}
	return byte(idx)
}

// Bus is a Bus Pirate in binary SPI mode
type Bus struct {
	mu          sync.Mutex
	port        io.ReadWriteCloser
	peripherals byte
	readTries   int
}

// Open opens the serial port name and enters binary SPI mode at speedHz
func Open(name string, speedHz int64) (*Bus, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(20 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	b, err := New(port, speedHz)
	if err != nil {
		port.Close()
		return nil, err
	}
	return b, nil
}

// New enters binary SPI mode on an already open port
func New(port io.ReadWriteCloser, speedHz int64) (*Bus, error) {
	b := &Bus{port: port, readTries: 50}
	if err := b.enterBitbang(); err != nil {
		return nil, err
	}
	if err := b.write(cmdEnterSPI); err != nil {
		return nil, err
	}
	if err := b.expect(bannerSPI); err != nil {
		return nil, fmt.Errorf("failed to enter SPI mode: %w", err)
	}
	if err := b.command(cmdSpeed | SpeedIndex(speedHz)); err != nil {
		return nil, fmt.Errorf("failed to set speed: %w", err)
	}
	if err := b.command(cmdConfig | spiMode0); err != nil {
		return nil, fmt.Errorf("failed to set SPI mode: %w", err)
	}
	// power on, CS high, AUX (SDN) low
	b.peripherals = peripheralPower | peripheralCS
	if err := b.command(cmdPeripherals | b.peripherals); err != nil {
		return nil, fmt.Errorf("failed to set peripherals: %w", err)
	}
	return b, nil
}

func (b *Bus) enterBitbang() error {
	var seen []byte
	buf := make([]byte, 32)
	for i := 0; i < bbioTries; i++ {
		if err := b.write(cmdReset); err != nil {
			return err
		}
		n, err := b.port.Read(buf)
		if err != nil {
			return fmt.Errorf("failed to read banner: %w", err)
		}
		seen = append(seen, buf[:n]...)
		if bytes.Contains(seen, bannerBBIO) {
			return b.drain()
		}
	}
	return fmt.Errorf("%w: no %s banner after %d resets", ErrNoResponse, bannerBBIO, bbioTries)
}

// drain discards the extra banners answered to surplus resets
func (b *Bus) drain() error {
	buf := make([]byte, 32)
	for {
		n, err := b.port.Read(buf)
		if err != nil && err != io.EOF {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (b *Bus) write(p ...byte) error {
	if _, err := b.port.Write(p); err != nil {
		return fmt.Errorf("failed to write to bus pirate: %w", err)
	}
	return nil
}

// readN reads exactly n bytes, tolerating read timeouts that return nothing
func (b *Bus) readN(n int) ([]byte, error) {
	out := make([]byte, n)
	got := 0
	for tries := 0; got < n; {
		m, err := b.port.Read(out[got:])
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to read from bus pirate: %w", err)
		}
		if m == 0 {
			tries++
			if tries >= b.readTries {
				return nil, fmt.Errorf("%w: %d of %d bytes", ErrNoResponse, got, n)
			}
			continue
		}
		got += m
	}
	return out, nil
}

func (b *Bus) expect(want []byte) error {
	got, err := b.readN(len(want))
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: got %q, want %q", ErrNoResponse, got, want)
	}
	return nil
}

// command sends a one byte command and checks the 0x01 acknowledgement
func (b *Bus) command(c byte) error {
	if err := b.write(c); err != nil {
		return err
	}
	r, err := b.readN(1)
	if err != nil {
		return err
	}
	if r[0] != ack {
		return fmt.Errorf("%w: 0x%02X answered 0x%02X", ErrNoAck, c, r[0])
	}
	return nil
}

// Tx implements si4432.Bus
func (b *Bus) Tx(w, r []byte) error {
	if r != nil && len(r) != len(w) {
		return fmt.Errorf("buspirate: read buffer of %d bytes for a %d byte transfer", len(r), len(w))
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.command(cmdCSLow); err != nil {
		return fmt.Errorf("failed to assert chip select: %w", err)
	}
	err := b.bulk(w, r)
	if csErr := b.command(cmdCSHigh); csErr != nil && err == nil {
		err = fmt.Errorf("failed to release chip select: %w", csErr)
	}
	return err
}

func (b *Bus) bulk(w, r []byte) error {
	for off := 0; off < len(w); off += bulkMax {
		end := off + bulkMax
		if end > len(w) {
			end = len(w)
		}
		chunk := w[off:end]
		if err := b.write(append([]byte{cmdBulk | byte(len(chunk)-1)}, chunk...)...); err != nil {
			return err
		}
		resp, err := b.readN(1 + len(chunk))
		if err != nil {
			return err
		}
		if resp[0] != ack {
			return fmt.Errorf("%w: bulk transfer answered 0x%02X", ErrNoAck, resp[0])
		}
		if r != nil {
			copy(r[off:end], resp[1:])
		}
	}
	return nil
}

// ShutdownPin returns the AUX line as the SDN pin
func (b *Bus) ShutdownPin() si4432.PinOutput {
	return si4432.PinOutputFunc(func(high bool) error {
		b.mu.Lock()
		defer b.mu.Unlock()

		p := b.peripherals &^ peripheralAUX
		if high {
			p |= peripheralAUX
		}
		if err := b.command(cmdPeripherals | p); err != nil {
			return fmt.Errorf("failed to drive AUX: %w", err)
		}
		b.peripherals = p
		return nil
	})
}

// Close powers the peripherals down, returns the Bus Pirate to its
// terminal and closes the port.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.command(cmdPeripherals)
	b.write(cmdReset)
	b.write(cmdExit)
	return b.port.Close()
}
