package watertower

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/herlein/watertower/pkg/link"
	"github.com/herlein/watertower/pkg/si4432"
	"github.com/herlein/watertower/pkg/simradio"
)

type fakeRequester struct {
	mu       sync.Mutex
	refuse   bool
	requests [][]byte
}

func (f *fakeRequester) RequestExchange(tag uint8, payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return false
	}
	f.requests = append(f.requests, append([]byte{tag}, payload...))
	return true
}

type eventLog struct {
	mu           sync.Mutex
	readings     []Reading
	alarms       int
	connected    int
	disconnected int
}

func (e *eventLog) WaterLevelChanged(r Reading) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readings = append(e.readings, r)
}

func (e *eventLog) HighWaterLevelAlarm(Reading) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alarms++
}

func (e *eventLog) Connected(int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected++
}

func (e *eventLog) Disconnected(int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disconnected++
}

func (e *eventLog) counts() (readings, alarms, connected, disconnected int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.readings), e.alarms, e.connected, e.disconnected
}

// echoFor returns the echo time that puts the surface distanceCM away
func echoFor(distanceCM float64) []byte {
	us := uint32(math.Round(distanceCM * 2 * 1e6 / (SpeedOfSound * 100)))
	return EncodeEcho(us)
}

func TestDistanceCM(t *testing.T) {
	for _, tc := range []struct {
		us   uint32
		want float64
	}{
		{100, 1.7},
		{5882, 99.994},
		{0, 0},
	} {
		if got := DistanceCM(tc.us); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("DistanceCM(%d) = %v, want %v", tc.us, got, tc.want)
		}
	}
}

func TestEchoMicros(t *testing.T) {
	for _, tc := range []struct {
		cm   float64
		want uint32
	}{
		{1.7, 100},
		{100, 5882},
		{0, 0},
		{-3, 0},
	} {
		if got := EchoMicros(tc.cm); got != tc.want {
			t.Errorf("EchoMicros(%v) = %d, want %d", tc.cm, got, tc.want)
		}
	}
}

func TestDecodeEcho(t *testing.T) {
	us, err := DecodeEcho([]byte{0x64, 0x00, 0x00, 0x00})
	if err != nil || us != 100 {
		t.Errorf("DecodeEcho = %d, %v", us, err)
	}
	us, err = DecodeEcho([]byte{0x60, 0xEA, 0x00, 0x00})
	if err != nil || us != 60000 {
		t.Errorf("DecodeEcho = %d, %v", us, err)
	}
	for _, p := range [][]byte{nil, {1, 2, 3}, {1, 2, 3, 4, 5}} {
		if _, err := DecodeEcho(p); !errors.Is(err, ErrBadPayload) {
			t.Errorf("DecodeEcho(% X) = %v", p, err)
		}
	}
	if !bytes.Equal(EncodeEcho(100), []byte{0x64, 0, 0, 0}) {
		t.Error("EncodeEcho(100)")
	}
}

func TestLevel(t *testing.T) {
	for _, tc := range []struct {
		distance float64
		height   int
		level    float64
		percent  int
	}{
		{50, 200, 150, 75},
		{250, 200, 0, 0},
		{-5, 200, 200, 100},
		{1.7, 200, 198.3, 99},
	} {
		level, percent := Level(tc.distance, tc.height)
		if math.Abs(level-tc.level) > 1e-9 || percent != tc.percent {
			t.Errorf("Level(%v, %d) = %v, %d", tc.distance, tc.height, level, percent)
		}
	}
}

func TestLevelSmoother(t *testing.T) {
	s := NewLevelSmootherWithParams(5, 0.5, 0.1)
	if got := s.Update(100); got != 100 {
		t.Errorf("first value = %v", got)
	}
	if got := s.Update(102); math.Abs(got-100.2) > 1e-9 {
		t.Errorf("small change = %v, want 100.2", got)
	}
	if got := s.Update(150.2); math.Abs(got-125.2) > 1e-9 {
		t.Errorf("large change = %v, want 125.2", got)
	}
	s.Reset()
	if got := s.Update(0); got != 0 {
		t.Errorf("after reset = %v", got)
	}
}

func TestLinkTracker(t *testing.T) {
	tr := newLinkTracker(2)
	if tr.missed() {
		t.Error("disconnect reported while never connected")
	}
	if !tr.replied() || tr.replied() {
		t.Error("replied must report only the first transition")
	}
	if tr.missed() {
		t.Error("disconnected after one miss")
	}
	if !tr.missed() {
		t.Error("not disconnected after two misses")
	}
	if tr.missed() || tr.connected {
		t.Error("disconnect reported twice")
	}
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		cfg  Config
		want error
	}{
		{Config{ID: 0}, nil},
		{Config{ID: 5, HeightCM: 300, ReservedCM: 20}, nil},
		{Config{ID: 6}, ErrInvalidTower},
		{Config{ID: -1}, ErrInvalidTower},
		{Config{ID: 1, HeightCM: 10, ReservedCM: 10}, ErrInvalidHeight},
		{Config{ID: 1, HeightCM: -3}, ErrInvalidHeight},
	} {
		if err := tc.cfg.Validate(); !errors.Is(err, tc.want) {
			t.Errorf("Validate(%+v) = %v, want %v", tc.cfg, err, tc.want)
		}
	}
}

func newFakeTower(t *testing.T, cfg Config, opts Options) (*Tower, *fakeRequester, *eventLog) {
	t.Helper()
	req := &fakeRequester{}
	events := &eventLog{}
	opts.Listener = events
	tw, err := NewTower(cfg, req, opts)
	if err != nil {
		t.Fatal(err)
	}
	return tw, req, events
}

func TestTriggerPayload(t *testing.T) {
	tw, req, _ := newFakeTower(t, Config{ID: 2, Enabled: true}, Options{})
	if !tw.Trigger() {
		t.Fatal("trigger refused")
	}
	if err := tw.SetSampleInterval(30 * time.Second); err != nil {
		t.Fatal(err)
	}
	tw.Trigger()
	if !bytes.Equal(req.requests[0], []byte{ProtocolTag, 10}) || !bytes.Equal(req.requests[1], []byte{ProtocolTag, 30}) {
		t.Errorf("requests % X", req.requests)
	}
	if err := tw.SetSampleInterval(time.Hour); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("SetSampleInterval(1h) = %v", err)
	}

	tw.SetEnabled(false)
	if tw.Trigger() {
		t.Error("disabled tower sent a request")
	}
	if Identity(2) != 0x12 {
		t.Errorf("Identity(2) = %s", Identity(2))
	}
}

func TestReadingAndAlarm(t *testing.T) {
	tw, _, events := newFakeTower(t, Config{ID: 0, Enabled: true}, Options{})

	steps := []struct {
		distance  float64
		alarms    int
		alarming  bool
		wantLevel float64
	}{
		{100, 0, false, 100},
		{5, 1, true, 195},
		{4, 1, true, 196},
		{50, 1, false, 150},
		{3, 2, true, 197},
	}
	for i, s := range steps {
		if err := tw.HandleResponse(ProtocolTag, echoFor(s.distance)); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		_, alarms, _, _ := events.counts()
		if alarms != s.alarms || tw.Alarming() != s.alarming {
			t.Errorf("step %d: %d alarms, alarming %v", i, alarms, tw.Alarming())
		}
		r, ok := tw.LastReading()
		if !ok || math.Abs(r.LevelCM-s.wantLevel) > 0.1 {
			t.Errorf("step %d: level %v", i, r.LevelCM)
		}
	}
	if _, _, connected, _ := events.counts(); connected != 1 {
		t.Errorf("connected reported %d times", connected)
	}
}

func TestInvalidRepliesIgnored(t *testing.T) {
	tw, _, events := newFakeTower(t, Config{ID: 0, Enabled: true}, Options{})

	if err := tw.HandleResponse(0, []byte{1, 2}); !errors.Is(err, ErrBadPayload) {
		t.Errorf("short payload: %v", err)
	}
	for _, us := range []uint32{0, 4, 60001} {
		if err := tw.HandleResponse(0, EncodeEcho(us)); !errors.Is(err, ErrEchoOutOfRange) {
			t.Errorf("%d us: %v", us, err)
		}
	}
	if readings, _, _, _ := events.counts(); readings != 0 {
		t.Errorf("%d readings from invalid replies", readings)
	}
	if !tw.Connected() {
		t.Error("a reply, even malformed, shows the sensor is alive")
	}
}

func TestDisconnectAfterMissedTriggers(t *testing.T) {
	tw, _, events := newFakeTower(t, Config{ID: 0, Enabled: true}, Options{MissedLimit: 3})

	tw.Trigger()
	tw.HandleResponse(0, echoFor(100))
	for i := 0; i < 3; i++ {
		tw.Trigger()
	}
	if _, _, _, d := events.counts(); d != 0 || !tw.Connected() {
		t.Fatal("disconnected after two misses")
	}
	tw.Trigger()
	if _, _, _, d := events.counts(); d != 1 || tw.Connected() {
		t.Errorf("disconnected %d times, connected %v", d, tw.Connected())
	}

	tw.HandleResponse(0, echoFor(2))
	if _, alarms, connected, _ := events.counts(); alarms != 1 || connected != 2 {
		t.Errorf("alarms %d, connected %d", alarms, connected)
	}
}

func newSimRadio(t *testing.T, chip *simradio.Chip) *link.Radio {
	t.Helper()
	dev := si4432.New(chip, si4432.DefaultSettings(), si4432.Options{
		Shutdown: chip,
		IRQ:      chip,
		Clock:    simradio.NewClock(),
	})
	r, err := link.New(dev, link.Options{})
	if err != nil {
		t.Fatal(err)
	}
	settings := si4432.Settings{FrequencyMHz: 433, BaudKbps: 100, Channel: 0, Signature: 0x2DD4}
	if _, err := r.Configure(settings); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestEndToEndEcho(t *testing.T) {
	chip := simradio.New()
	chip.Responder = simradio.Reply(0x64, 0x00, 0x00, 0x00)
	radio := newSimRadio(t, chip)

	events := &eventLog{}
	tw, err := Attach(radio, Config{ID: 0, Enabled: true}, Options{Listener: events})
	if err != nil {
		t.Fatal(err)
	}
	if !tw.Trigger() {
		t.Fatal("trigger refused")
	}
	tw.Wait()

	r, ok := tw.LastReading()
	if !ok {
		t.Fatal("no reading")
	}
	if r.EchoMicros != 100 || math.Abs(r.DistanceCM-1.7) > 1e-9 {
		t.Errorf("reading %+v", r)
	}
	if sent := chip.Events()[0].Packet; !bytes.Equal(sent, []byte{0x10, 0x00, 10}) {
		t.Errorf("request % X", sent)
	}
	// 1.7 cm is inside the 10 cm reserve
	if _, alarms, _, _ := events.counts(); alarms != 1 {
		t.Errorf("%d alarms", alarms)
	}
}

func TestStation(t *testing.T) {
	chip := simradio.New()
	chip.Responder = simradio.EchoResponder(func(id uint8) (uint32, bool) {
		switch id {
		case 0x10:
			return 5882, true // 100 cm
		case 0x11:
			return 2941, true // 50 cm
		}
		return 0, false
	})
	radio := newSimRadio(t, chip)

	events := &eventLog{}
	cfgs := []Config{
		{ID: 1, Enabled: true},
		{ID: 0, Enabled: true},
		{ID: 3, Enabled: true}, // no sensor answers
		{ID: 4},
	}
	st, err := NewStation(radio, cfgs, Options{
		Listener:       events,
		FirstTrigger:   time.Millisecond,
		SampleInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := st.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v", err)
	}

	towers := st.Towers()
	if len(towers) != 4 || towers[0].ID() != 0 || towers[3].ID() != 4 {
		t.Fatalf("towers not ordered by id")
	}
	for _, tc := range []struct {
		id      int
		reading bool
		level   float64
	}{
		{0, true, 100},
		{1, true, 150},
		{3, false, 0},
		{4, false, 0},
	} {
		tw, err := st.Tower(tc.id)
		if err != nil {
			t.Fatal(err)
		}
		r, ok := tw.LastReading()
		if ok != tc.reading {
			t.Errorf("tower %d: reading %v", tc.id, ok)
			continue
		}
		if ok && math.Abs(r.LevelCM-tc.level) > 0.1 {
			t.Errorf("tower %d: level %v", tc.id, r.LevelCM)
		}
	}
	if _, err := st.Tower(2); !errors.Is(err, ErrTowerNotFound) {
		t.Errorf("Tower(2) = %v", err)
	}
}

func TestStationRejectsBadConfig(t *testing.T) {
	chip := simradio.New()
	radio := newSimRadio(t, chip)
	if _, err := NewStation(radio, []Config{{ID: 1}, {ID: 1}}, Options{}); !errors.Is(err, ErrDuplicateTower) {
		t.Errorf("duplicate: %v", err)
	}
	if _, err := NewStation(radio, []Config{{ID: 7}}, Options{}); !errors.Is(err, ErrInvalidTower) {
		t.Errorf("id 7: %v", err)
	}
}
