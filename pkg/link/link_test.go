package link

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/herlein/watertower/pkg/si4432"
	"github.com/herlein/watertower/pkg/simradio"
)

var e2eSettings = si4432.Settings{FrequencyMHz: 433, BaudKbps: 100, Channel: 0, Signature: 0x2DD4}

// gateBus blocks every transaction while closed
type gateBus struct {
	bus  si4432.Bus
	mu   sync.Mutex
	gate chan struct{}
}

func (g *gateBus) Tx(w, r []byte) error {
	g.mu.Lock()
	gate := g.gate
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return g.bus.Tx(w, r)
}

func (g *gateBus) close() {
	g.mu.Lock()
	g.gate = make(chan struct{})
	g.mu.Unlock()
}

func (g *gateBus) open() {
	g.mu.Lock()
	close(g.gate)
	g.gate = nil
	g.mu.Unlock()
}

func newTestRadio(t *testing.T, bus si4432.Bus, chip *simradio.Chip) *Radio {
	t.Helper()
	dev := si4432.New(bus, si4432.DefaultSettings(), si4432.Options{
		Shutdown: chip,
		IRQ:      chip,
		Clock:    simradio.NewClock(),
	})
	r, err := New(dev, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Configure(e2eSettings); err != nil {
		t.Fatal(err)
	}
	return r
}

type recorder struct {
	mu  sync.Mutex
	got []Response
}

func (rec *recorder) handler(id Identity) Handler {
	return HandlerFunc(func(tag uint8, payload []byte) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.got = append(rec.got, Response{Identity: id, Tag: tag, Payload: payload})
	})
}

func (rec *recorder) responses() []Response {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]Response(nil), rec.got...)
}

func TestFrame(t *testing.T) {
	payload := []byte{10}
	f := Frame(0x10, 0, payload)
	payload[0] = 99
	if !bytes.Equal(f, []byte{0x10, 0x00, 10}) {
		t.Errorf("Frame = % X", f)
	}
	if _, err := ParseResponse([]byte{0x10}); !errors.Is(err, ErrShortResponse) {
		t.Errorf("ParseResponse of 1 byte: %v", err)
	}
	resp, err := ParseResponse([]byte{0x11, 0x02, 0xAA, 0xBB})
	if err != nil || resp.Identity != 0x11 || resp.Tag != 2 || !bytes.Equal(resp.Payload, []byte{0xAA, 0xBB}) {
		t.Errorf("ParseResponse = %+v, %v", resp, err)
	}
}

func TestDeviceClaimedOnce(t *testing.T) {
	chip := simradio.New()
	dev := si4432.New(chip, e2eSettings, si4432.Options{Clock: simradio.NewClock()})
	r, err := New(dev, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(dev, Options{}); !errors.Is(err, ErrDeviceClaimed) {
		t.Errorf("second New = %v, want ErrDeviceClaimed", err)
	}
	r.Close()
	if _, err := New(dev, Options{}); err != nil {
		t.Errorf("New after Close = %v", err)
	}
}

func TestInitOnce(t *testing.T) {
	chip := simradio.New()
	r := newTestRadio(t, chip, chip)
	if _, err := r.Endpoint(0x10, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Endpoint(0x11, nil); err != nil {
		t.Fatal(err)
	}
	if n := r.Stats().Resets; n != 1 {
		t.Errorf("hardware reset %d times", n)
	}
}

func TestEndToEndEcho(t *testing.T) {
	chip := simradio.New()
	chip.Responder = simradio.Reply(0x64, 0x00, 0x00, 0x00)
	r := newTestRadio(t, chip, chip)

	rec := &recorder{}
	ep, err := r.Endpoint(0x10, rec.handler(0x10))
	if err != nil {
		t.Fatal(err)
	}
	if !ep.RequestExchange(0, []byte{10}) {
		t.Fatal("request refused")
	}
	ep.Wait()

	got := rec.responses()
	if len(got) != 1 {
		t.Fatalf("%d deliveries", len(got))
	}
	if got[0].Tag != 0 || !bytes.Equal(got[0].Payload, []byte{0x64, 0, 0, 0}) {
		t.Errorf("delivered %+v", got[0])
	}
	sent := chip.Events()[0].Packet
	if !bytes.Equal(sent, []byte{0x10, 0x00, 10}) {
		t.Errorf("sent % X", sent)
	}
}

func TestTransmitTimeoutNotDelivered(t *testing.T) {
	chip := simradio.New()
	chip.NeverSent = true
	r := newTestRadio(t, chip, chip)

	if _, err := r.Exchange(0x10, 0, []byte{10}); !errors.Is(err, si4432.ErrTransmitTimeout) {
		t.Errorf("Exchange = %v, want ErrTransmitTimeout", err)
	}

	rec := &recorder{}
	ep, _ := r.Endpoint(0x10, rec.handler(0x10))
	ep.RequestExchange(0, []byte{10})
	ep.Wait()
	if len(rec.responses()) != 0 {
		t.Error("failed exchange delivered a response")
	}
	if si4432.Mode(chip.Mode()) != si4432.ModeReady {
		t.Errorf("mode = %s, want Ready", si4432.Mode(chip.Mode()))
	}
	if ep.Busy() {
		t.Error("endpoint still busy after the exchange resolved")
	}
}

func TestMisaddressedReplyDropped(t *testing.T) {
	chip := simradio.New()
	chip.Responder = simradio.ReplyAs(0x12, 1, 2, 3, 4)
	r := newTestRadio(t, chip, chip)

	if _, err := r.Exchange(0x10, 0, nil); !errors.Is(err, ErrMisaddressed) {
		t.Errorf("Exchange = %v, want ErrMisaddressed", err)
	}
	rec := &recorder{}
	ep, _ := r.Endpoint(0x10, rec.handler(0x10))
	for i := 0; i < 5; i++ {
		if !ep.RequestExchange(0, []byte{10}) {
			t.Fatal("request refused")
		}
		ep.Wait()
	}
	if n := len(rec.responses()); n != 0 {
		t.Errorf("%d misaddressed replies delivered", n)
	}
}

func TestBusyRefusal(t *testing.T) {
	chip := simradio.New()
	chip.Responder = simradio.Reply(1)
	gate := &gateBus{bus: chip}
	r := newTestRadio(t, gate, chip)

	rec := &recorder{}
	ep, err := r.Endpoint(0x10, rec.handler(0x10))
	if err != nil {
		t.Fatal(err)
	}
	other, _ := r.Endpoint(0x11, nil)

	gate.close()
	if !ep.RequestExchange(0, []byte{1}) {
		t.Fatal("first request refused")
	}
	for i := 0; i < 3; i++ {
		if ep.RequestExchange(0, []byte{2}) {
			t.Fatal("second request accepted while the first is outstanding")
		}
	}
	if !other.RequestExchange(0, nil) {
		t.Error("another identity was refused")
	}
	gate.open()
	ep.Wait()
	other.Wait()

	if !ep.RequestExchange(0, []byte{3}) {
		t.Error("request refused after the previous one resolved")
	}
	ep.Wait()
	if n := len(rec.responses()); n != 2 {
		t.Errorf("%d deliveries, want 2", n)
	}
}

func TestBusyUntilHandlerReturns(t *testing.T) {
	chip := simradio.New()
	chip.Responder = simradio.Reply(1)
	r := newTestRadio(t, chip, chip)

	entered := make(chan struct{})
	release := make(chan struct{})
	ep, err := r.Endpoint(0x10, HandlerFunc(func(uint8, []byte) {
		close(entered)
		<-release
	}))
	if err != nil {
		t.Fatal(err)
	}

	if !ep.RequestExchange(0, []byte{1}) {
		t.Fatal("first request refused")
	}
	<-entered
	if ep.RequestExchange(0, []byte{2}) {
		t.Error("request accepted while the handler is still running")
	}
	if !ep.Busy() {
		t.Error("endpoint idle while the handler is still running")
	}
	close(release)
	ep.Wait()
	if ep.Busy() {
		t.Error("endpoint still busy after the handler returned")
	}
}

func TestIdentitiesNeverInterleave(t *testing.T) {
	chip := simradio.New()
	chip.Responder = simradio.EchoResponder(func(id uint8) (uint32, bool) {
		return uint32(id) * 100, true
	})
	chip.CRCErrors = 1
	r := newTestRadio(t, chip, chip)
	chip.ClearTranscript()

	rec := &recorder{}
	var eps []*Endpoint
	for _, id := range []Identity{0x10, 0x11, 0x12, 0x13} {
		ep, err := r.Endpoint(id, rec.handler(id))
		if err != nil {
			t.Fatal(err)
		}
		eps = append(eps, ep)
	}
	for round := 0; round < 5; round++ {
		var start, launched sync.WaitGroup
		start.Add(1)
		for _, ep := range eps {
			launched.Add(1)
			go func(ep *Endpoint) {
				defer launched.Done()
				start.Wait()
				if !ep.RequestExchange(0, []byte{1}) {
					t.Errorf("%s refused", ep.Identity())
				}
			}(ep)
		}
		start.Done()
		launched.Wait()
		for _, ep := range eps {
			ep.Wait()
		}
	}

	// Every exchange must run sent, corrupted copy, delivered before the
	// next packet goes out.
	ev := chip.Events()
	if len(ev)%3 != 0 {
		t.Fatalf("%d events is not a whole number of exchanges", len(ev))
	}
	for i := 0; i < len(ev); i += 3 {
		sent, crc, delivered := ev[i], ev[i+1], ev[i+2]
		if sent.Kind != simradio.EventSent || crc.Kind != simradio.EventCRCError || delivered.Kind != simradio.EventDelivered {
			t.Fatalf("events %d..%d out of order: %v %v %v", i, i+2, sent.Kind, crc.Kind, delivered.Kind)
		}
		if sent.Packet[0] != delivered.Packet[0] {
			t.Errorf("exchange for 0x%02X got the reply of 0x%02X", sent.Packet[0], delivered.Packet[0])
		}
	}
	for _, resp := range rec.responses() {
		want := uint32(resp.Identity) * 100
		got := uint32(resp.Payload[0]) | uint32(resp.Payload[1])<<8
		if got != want {
			t.Errorf("%s received %d, want %d", resp.Identity, got, want)
		}
	}
	if n := len(rec.responses()); n != 5*len(eps) {
		t.Errorf("%d deliveries, want %d", n, 5*len(eps))
	}
}

func TestClosedRadio(t *testing.T) {
	chip := simradio.New()
	r := newTestRadio(t, chip, chip)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if chip.Powered() {
		t.Error("chip still powered after Close")
	}
	if _, err := r.Exchange(0x10, 0, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Exchange after Close = %v", err)
	}
}

func TestPayloadTooLong(t *testing.T) {
	chip := simradio.New()
	r := newTestRadio(t, chip, chip)
	if _, err := r.Exchange(0x10, 0, make([]byte, 63)); !errors.Is(err, ErrPayloadTooLong) {
		t.Errorf("Exchange = %v, want ErrPayloadTooLong", err)
	}
}
