// Package simradio simulates an Si4432 behind an SPI bus: register file,
// FIFOs, interrupt status, mode transitions and the SDN and nIRQ lines.
// Remote stations are modelled by a Responder that answers every packet
// sent.
//
// Chip records every bus transaction so tests can check access order.
package simradio

import (
	"fmt"
	"sync"

	"github.com/herlein/watertower/pkg/registers"
)

// Responder returns the reply to a transmitted packet, or nil for silence
type Responder func(packet []byte) []byte

// Access is one recorded bus transaction
type Access struct {
	Write bool
	Addr  uint8
	Data  []byte // bytes written, or bytes returned for reads
}

// String renders the access like "W 0x07: 09"
func (a Access) String() string {
	dir := "R"
	if a.Write {
		dir = "W"
	}
	return fmt.Sprintf("%s 0x%02X: % X", dir, a.Addr, a.Data)
}

// EventKind classifies an Event
type EventKind int

const (
	EventSent      EventKind = iota // a packet left the transmit FIFO
	EventDelivered                  // a reply was placed in the receive FIFO
	EventCRCError                   // a reply was corrupted on air
)

// Event is one over-the-air occurrence
type Event struct {
	Kind   EventKind
	Packet []byte
}

// Chip is a simulated transceiver. Its exported fault fields may be set
// before use; change them later only while no exchange is running.
type Chip struct {
	// Responder answers sent packets. Nil means nobody answers.
	Responder Responder
	// NeverSent suppresses the packet sent interrupt
	NeverSent bool
	// CRCErrors is the number of corrupted copies received before each
	// reply arrives intact.
	CRCErrors int
	// PORReads is the number of INT_STATUS2 reads after power on before
	// the chip reports ready.
	PORReads int
	// PORNever keeps the chip from ever reporting ready
	PORNever bool
	// DeviceType is returned by register 0x00, 0x08 when zero
	DeviceType uint8
	// RSSIValue is returned by the RSSI register
	RSSIValue uint8
	// ChannelRSSI overrides RSSIValue while the chip is tuned to a channel
	ChannelRSSI map[uint8]uint8

	mu         sync.Mutex
	m          *registers.Map
	regs       [0x80]byte
	txFIFO     []byte
	rxFIFO     []byte
	status1    uint8
	status2    uint8
	powered    bool
	porLeft    int
	pending    []byte
	crcLeft    int
	transcript []Access
	events     []Event
}

// New returns a powered chip that has completed power-on-reset
func New() *Chip {
	c := &Chip{m: &registers.Si4432}
	c.reset()
	c.powered = true
	return c
}

func (c *Chip) reset() {
	c.regs = [0x80]byte{}
	c.regs[c.m.OpControl1.Addr] = 0x01
	c.txFIFO = nil
	c.rxFIFO = nil
	c.status1 = 0
	c.status2 = 0x02
	c.porLeft = c.PORReads
	c.pending = nil
}

// Tx implements the si4432 Bus
func (c *Chip) Tx(w, r []byte) error {
	if len(w) == 0 {
		return fmt.Errorf("simradio: empty transaction")
	}
	if r != nil && len(r) != len(w) {
		return fmt.Errorf("simradio: read buffer %d bytes, write %d", len(r), len(w))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	write := w[0]&0x80 != 0
	addr := w[0] & 0x7F
	data := w[1:]
	rec := Access{Write: write, Addr: addr}

	if write {
		rec.Data = append([]byte(nil), data...)
		if c.powered {
			for i, b := range data {
				c.writeReg(c.next(addr, i), b)
			}
		}
	} else {
		out := make([]byte, len(data))
		for i := range out {
			out[i] = 0xFF
			if c.powered {
				out[i] = c.readReg(c.next(addr, i))
			}
		}
		if r != nil {
			r[0] = 0x00
			copy(r[1:], out)
		}
		rec.Data = out
	}
	c.transcript = append(c.transcript, rec)
	return nil
}

// next is the address of the i'th byte of a burst
func (c *Chip) next(addr uint8, i int) uint8 {
	if addr == c.m.FIFO.Addr {
		return addr
	}
	return (addr + uint8(i)) & 0x7F
}

func (c *Chip) writeReg(a, v uint8) {
	switch a {
	case c.m.DeviceType.Addr, c.m.DeviceVersion.Addr, c.m.DeviceStatus.Addr,
		c.m.IntStatus1.Addr, c.m.IntStatus2.Addr, c.m.RSSI.Addr, c.m.ReceivedPacketLength.Addr:
		// read only
	case c.m.OpControl1.Addr:
		c.setMode(v)
	case c.m.OpControl2.Addr:
		if v&0x01 != 0 {
			c.txFIFO = nil
		}
		if v&0x02 != 0 {
			c.rxFIFO = nil
		}
		if v&0x03 != 0 {
			c.regs[c.m.DeviceStatus.Addr] &^= 0xC0
		}
		c.regs[a] = v
	case c.m.FIFO.Addr:
		if len(c.txFIFO) >= c.m.FIFODepth {
			c.regs[c.m.DeviceStatus.Addr] |= 0x80
			return
		}
		c.txFIFO = append(c.txFIFO, v)
	default:
		c.regs[a] = v
	}
}

func (c *Chip) readReg(a uint8) uint8 {
	switch a {
	case c.m.DeviceType.Addr:
		if c.DeviceType != 0 {
			return c.DeviceType
		}
		return c.m.ExpectedDeviceType
	case c.m.DeviceVersion.Addr:
		return 0x06
	case c.m.IntStatus1.Addr:
		v := c.status1
		c.status1 = 0
		return v
	case c.m.IntStatus2.Addr:
		if c.PORNever {
			return 0
		}
		if c.porLeft > 0 {
			c.porLeft--
			return 0
		}
		v := c.status2
		c.status2 = 0
		return v
	case c.m.RSSI.Addr:
		if v, ok := c.ChannelRSSI[c.regs[c.m.ChannelSelect.Addr]]; ok {
			return v
		}
		return c.RSSIValue
	case c.m.ReceivedPacketLength.Addr:
		return uint8(len(c.rxFIFO))
	case c.m.FIFO.Addr:
		if len(c.rxFIFO) == 0 {
			c.regs[c.m.DeviceStatus.Addr] |= 0x40
			return 0
		}
		v := c.rxFIFO[0]
		c.rxFIFO = c.rxFIFO[1:]
		return v
	}
	return c.regs[a]
}

func (c *Chip) setMode(v uint8) {
	if v&0x80 != 0 {
		c.reset()
		return
	}
	c.regs[c.m.OpControl1.Addr] = v

	if v&0x08 != 0 {
		c.transmit()
	}
	if v&0x04 != 0 {
		c.receive()
	}
}

func (c *Chip) transmit() {
	if c.NeverSent {
		return
	}
	n := int(c.regs[c.m.TransmitPacketLength.Addr])
	if n > len(c.txFIFO) {
		c.regs[c.m.DeviceStatus.Addr] |= 0x40
		n = len(c.txFIFO)
	}
	packet := append([]byte(nil), c.txFIFO[:n]...)
	c.txFIFO = c.txFIFO[n:]
	c.status1 |= 0x04
	// txon clears itself once the packet is out
	c.regs[c.m.OpControl1.Addr] &^= 0x08
	c.events = append(c.events, Event{Kind: EventSent, Packet: packet})

	if c.Responder != nil {
		if reply := c.Responder(packet); reply != nil {
			c.pending = append([]byte(nil), reply...)
			c.crcLeft = c.CRCErrors
		}
	}
}

func (c *Chip) receive() {
	if c.pending == nil {
		return
	}
	if c.crcLeft > 0 {
		c.crcLeft--
		c.status1 |= 0x01
		c.events = append(c.events, Event{Kind: EventCRCError, Packet: c.pending})
		return
	}
	c.rxFIFO = c.pending
	c.pending = nil
	c.status1 |= 0x02
	c.events = append(c.events, Event{Kind: EventDelivered, Packet: c.rxFIFO})
}

// Out implements si4432.PinOutput for the SDN line
func (c *Chip) Out(high bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if high {
		c.powered = false
		return nil
	}
	if !c.powered {
		c.reset()
		c.powered = true
	}
	return nil
}

// Read implements si4432.PinInput for the nIRQ line, which is low while an
// enabled interrupt is pending.
func (c *Chip) Read() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.status1&c.regs[c.m.IntEnable1.Addr] != 0 ||
		c.status2&c.regs[c.m.IntEnable2.Addr] != 0
	return !pending, nil
}

// Mode returns the mode register without recording an access
func (c *Chip) Mode() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[c.m.OpControl1.Addr]
}

// Register returns a register value without side effects
func (c *Chip) Register(addr uint8) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[addr&0x7F]
}

// Powered reports whether SDN is low
func (c *Chip) Powered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.powered
}

// Transcript returns a copy of every recorded transaction
func (c *Chip) Transcript() []Access {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Access(nil), c.transcript...)
}

// Events returns a copy of the over-the-air events
func (c *Chip) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// ClearTranscript forgets recorded transactions and events
func (c *Chip) ClearTranscript() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = nil
	c.events = nil
}
