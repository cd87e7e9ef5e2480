package simradio

import (
	"bytes"
	"testing"
	"time"
)

func tx(t *testing.T, c *Chip, w ...byte) []byte {
	t.Helper()
	r := make([]byte, len(w))
	if err := c.Tx(w, r); err != nil {
		t.Fatal(err)
	}
	return r[1:]
}

func TestBurstWriteAutoIncrements(t *testing.T) {
	c := New()
	tx(t, c, 0x75|0x80, 0x53, 0x4B, 0x00)
	got := tx(t, c, 0x75, 0xFF, 0xFF, 0xFF)
	if !bytes.Equal(got, []byte{0x53, 0x4B, 0x00}) {
		t.Errorf("read back % X", got)
	}
}

func TestFIFODoesNotIncrement(t *testing.T) {
	c := New()
	tx(t, c, 0x3E|0x80, 3)
	tx(t, c, 0x7F|0x80, 1, 2, 3)
	if c.Register(0x7F) != 0 || c.Register(0x00) != 0 {
		t.Error("FIFO write leaked into the register file")
	}
	tx(t, c, 0x05|0x80, 0x04)
	tx(t, c, 0x07|0x80, 0x09)
	ev := c.Events()
	if len(ev) != 1 || ev[0].Kind != EventSent || !bytes.Equal(ev[0].Packet, []byte{1, 2, 3}) {
		t.Fatalf("events = %+v", ev)
	}
	if c.Mode() != 0x01 {
		t.Errorf("mode after send = 0x%02X, want Ready", c.Mode())
	}
}

func TestStatusClearsOnRead(t *testing.T) {
	c := New()
	c.Responder = Reply(0xAA)
	tx(t, c, 0x3E|0x80, 2)
	tx(t, c, 0x7F|0x80, 0x10, 0x00)
	tx(t, c, 0x05|0x80, 0x04)
	tx(t, c, 0x07|0x80, 0x09)

	if high, _ := c.Read(); high {
		t.Error("nIRQ should be low after packet sent")
	}
	if s := tx(t, c, 0x03, 0xFF); s[0]&0x04 == 0 {
		t.Errorf("status1 = 0x%02X", s[0])
	}
	if s := tx(t, c, 0x03, 0xFF); s[0] != 0 {
		t.Errorf("status1 not cleared: 0x%02X", s[0])
	}
	if high, _ := c.Read(); !high {
		t.Error("nIRQ should be high once status is read")
	}

	tx(t, c, 0x05|0x80, 0x03)
	tx(t, c, 0x07|0x80, 0x05)
	if s := tx(t, c, 0x03, 0xFF); s[0]&0x02 == 0 {
		t.Fatalf("no packet valid, status1 = 0x%02X", s[0])
	}
	n := tx(t, c, 0x4B, 0xFF)[0]
	got := tx(t, c, 0x7F, 0xFF, 0xFF, 0xFF)
	if n != 3 || !bytes.Equal(got, []byte{0x10, 0x00, 0xAA}) {
		t.Errorf("received %d bytes % X", n, got)
	}
}

func TestCRCErrorsBeforeReply(t *testing.T) {
	c := New()
	c.Responder = Reply(1)
	c.CRCErrors = 2
	tx(t, c, 0x3E|0x80, 2)
	tx(t, c, 0x7F|0x80, 0x10, 0x00)
	tx(t, c, 0x07|0x80, 0x09)
	tx(t, c, 0x03, 0xFF)

	want := []uint8{0x01, 0x01, 0x02}
	for i, w := range want {
		tx(t, c, 0x07|0x80, 0x05)
		if s := tx(t, c, 0x03, 0xFF); s[0] != w {
			t.Errorf("receive %d: status1 = 0x%02X, want 0x%02X", i, s[0], w)
		}
	}
}

func TestShutdownAndPOR(t *testing.T) {
	c := New()
	c.PORReads = 2
	if err := c.Out(true); err != nil {
		t.Fatal(err)
	}
	if got := tx(t, c, 0x00, 0xFF); got[0] != 0xFF {
		t.Errorf("powered down chip answered 0x%02X", got[0])
	}
	c.Out(false)
	for i := 0; i < 2; i++ {
		if s := tx(t, c, 0x04, 0xFF); s[0] != 0 {
			t.Errorf("read %d: POR reported early", i)
		}
	}
	if s := tx(t, c, 0x04, 0xFF); s[0]&0x02 == 0 {
		t.Error("POR not reported")
	}
	if got := tx(t, c, 0x00, 0xFF); got[0] != 0x08 {
		t.Errorf("device type 0x%02X", got[0])
	}
}

func TestTranscript(t *testing.T) {
	c := New()
	tx(t, c, 0x79|0x80, 5)
	tx(t, c, 0x79, 0xFF)
	tr := c.Transcript()
	if len(tr) != 2 || !tr[0].Write || tr[1].Write || tr[1].Data[0] != 5 {
		t.Errorf("transcript = %v", tr)
	}
	if s := tr[0].String(); s != "W 0x79: 05" {
		t.Errorf("String() = %q", s)
	}
	c.ClearTranscript()
	if len(c.Transcript()) != 0 {
		t.Error("transcript not cleared")
	}
}

func TestClock(t *testing.T) {
	c := NewClock()
	start := c.Now()
	c.Sleep(150 * time.Millisecond)
	if d := c.Now().Sub(start); d != 150*time.Millisecond {
		t.Errorf("advanced %v", d)
	}
}

func TestEchoResponder(t *testing.T) {
	r := EchoResponder(func(id uint8) (uint32, bool) {
		return 100, id == 0x10
	})
	if got := r([]byte{0x10, 0x00, 10}); !bytes.Equal(got, []byte{0x10, 0x00, 0x64, 0, 0, 0}) {
		t.Errorf("reply % X", got)
	}
	if got := r([]byte{0x11, 0x00, 10}); got != nil {
		t.Errorf("absent sensor replied % X", got)
	}
}
