package buspirate

import (
	"bytes"
	"errors"
	"testing"
)

type pirateState int

const (
	terminal pirateState = iota
	bitbang
	spiMode
)

// fakePirate emulates the binary SPI protocol. The SPI slave answers
// every byte with its complement.
type fakePirate struct {
	state       pirateState
	out         bytes.Buffer
	bulkLeft    int
	cs          []bool
	speed       byte
	config      byte
	peripherals byte
	closed      bool
	mute        bool
}

func (f *fakePirate) Write(p []byte) (int, error) {
	for _, c := range p {
		f.handle(c)
	}
	return len(p), nil
}

func (f *fakePirate) handle(c byte) {
	if f.mute {
		return
	}
	if f.bulkLeft > 0 {
		f.bulkLeft--
		f.out.WriteByte(^c)
		return
	}
	switch f.state {
	case terminal:
		if c == cmdReset {
			f.out.WriteString("BBIO1")
			f.state = bitbang
		}
	case bitbang:
		switch c {
		case cmdReset:
			f.out.WriteString("BBIO1")
		case cmdEnterSPI:
			f.out.WriteString("SPI1")
			f.state = spiMode
		case cmdExit:
			f.out.WriteByte(ack)
			f.state = terminal
		}
	case spiMode:
		switch {
		case c == cmdReset:
			f.out.WriteString("BBIO1")
			f.state = bitbang
		case c == cmdCSLow || c == cmdCSHigh:
			f.cs = append(f.cs, c == cmdCSHigh)
			f.out.WriteByte(ack)
		case c&0xF0 == cmdBulk:
			f.bulkLeft = int(c&0x0F) + 1
			f.out.WriteByte(ack)
		case c&0xF0 == cmdPeripherals:
			f.peripherals = c & 0x0F
			f.out.WriteByte(ack)
		case c&0xF8 == cmdSpeed:
			f.speed = c & 0x07
			f.out.WriteByte(ack)
		case c&0xF0 == cmdConfig:
			f.config = c & 0x0F
			f.out.WriteByte(ack)
		default:
			f.out.WriteByte(0x00)
		}
	}
}

func (f *fakePirate) Read(p []byte) (int, error) {
	if f.out.Len() == 0 {
		return 0, nil
	}
	return f.out.Read(p)
}

func (f *fakePirate) Close() error {
	f.closed = true
	return nil
}

func TestSpeedIndex(t *testing.T) {
	for _, tc := range []struct {
		hz   int64
		want byte
	}{
		{0, 0},
		{30000, 0},
		{200000, 1},
		{1000000, 3},
		{3000000, 5},
		{10000000, 7},
	} {
		if got := SpeedIndex(tc.hz); got != tc.want {
			t.Errorf("SpeedIndex(%d) = %d, want %d", tc.hz, got, tc.want)
		}
	}
}

func TestOpenAndTransfer(t *testing.T) {
	f := &fakePirate{}
	b, err := New(f, 1000000)
	if err != nil {
		t.Fatal(err)
	}
	if f.state != spiMode || f.speed != 3 || f.config != spiMode0 {
		t.Fatalf("pirate state %d speed %d config 0x%X", f.state, f.speed, f.config)
	}
	if f.peripherals != peripheralPower|peripheralCS {
		t.Errorf("peripherals = 0x%X", f.peripherals)
	}

	w := make([]byte, 20)
	for i := range w {
		w[i] = byte(i)
	}
	r := make([]byte, len(w))
	if err := b.Tx(w, r); err != nil {
		t.Fatal(err)
	}
	for i := range r {
		if r[i] != ^w[i] {
			t.Fatalf("r[%d] = 0x%02X, want 0x%02X", i, r[i], ^w[i])
		}
	}
	if len(f.cs) != 2 || f.cs[0] || !f.cs[1] {
		t.Errorf("chip select sequence %v", f.cs)
	}

	if err := b.Tx([]byte{0x87, 0x01}, nil); err != nil {
		t.Fatal(err)
	}
	if err := b.Tx([]byte{1, 2}, make([]byte, 1)); err == nil {
		t.Error("short read buffer accepted")
	}

	sdn := b.ShutdownPin()
	if err := sdn.Out(true); err != nil {
		t.Fatal(err)
	}
	if f.peripherals&peripheralAUX == 0 {
		t.Error("AUX not driven high")
	}
	if err := sdn.Out(false); err != nil {
		t.Fatal(err)
	}
	if f.peripherals != peripheralPower|peripheralCS {
		t.Errorf("peripherals = 0x%X after AUX low", f.peripherals)
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if !f.closed || f.state != terminal || f.peripherals != 0 {
		t.Errorf("close left state %d peripherals 0x%X", f.state, f.peripherals)
	}
}

func TestNoResponse(t *testing.T) {
	if _, err := New(&fakePirate{mute: true}, 1000000); !errors.Is(err, ErrNoResponse) {
		t.Errorf("err = %v, want %v", err, ErrNoResponse)
	}
}
