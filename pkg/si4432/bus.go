package si4432

// Bus is a full-duplex SPI connection to the chip. Each call is one
// transaction with chip select asserted for its whole duration. r may be
// nil for write-only transactions, otherwise it has the length of w.
//
// periph.io spi.Conn satisfies Bus.
type Bus interface {
	Tx(w, r []byte) error
}

// PinOutput drives a digital output line, used for the SDN (shutdown) pin.
// High powers the chip down.
type PinOutput interface {
	Out(high bool) error
}

// PinInput samples a digital input line, used for the active low nIRQ pin.
type PinInput interface {
	Read() (high bool, err error)
}

// PinOutputFunc adapts a function to PinOutput
type PinOutputFunc func(high bool) error

// Out calls f(high)
func (f PinOutputFunc) Out(high bool) error { return f(high) }

// PinInputFunc adapts a function to PinInput
type PinInputFunc func() (bool, error)

// Read calls f()
func (f PinInputFunc) Read() (bool, error) { return f() }
