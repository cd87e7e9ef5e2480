// Package watertower polls ultrasonic water level sensors over the shared
// radio link.
//
// Every tank has a Tower: it periodically asks its remote sensor for an
// echo time, converts the answer into a water level and raises a high
// water alarm when the surface comes closer to the sensor than the
// reserved headroom. Events are delivered to a Listener.
package watertower

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/herlein/watertower/pkg/link"
)

// Config describes one tank. Zero heights take the defaults.
type Config struct {
	ID         int    `json:"id"`
	Name       string `json:"name,omitempty"`
	Enabled    bool   `json:"enabled"`
	HeightCM   int    `json:"height_cm"`
	ReservedCM int    `json:"reserved_cm"`
}

func (c Config) withDefaults() Config {
	if c.HeightCM == 0 {
		c.HeightCM = DefaultHeightCM
	}
	if c.ReservedCM == 0 {
		c.ReservedCM = DefaultReservedCM
	}
	return c
}

// Validate checks the id and the tank geometry
func (c Config) Validate() error {
	if c.ID < 0 || c.ID >= MaxQuantity {
		return fmt.Errorf("%w: %d (0..%d)", ErrInvalidTower, c.ID, MaxQuantity-1)
	}
	c = c.withDefaults()
	if c.HeightCM < 0 || c.ReservedCM < 0 || c.ReservedCM >= c.HeightCM {
		return fmt.Errorf("%w: height %d cm, reserved %d cm", ErrInvalidHeight, c.HeightCM, c.ReservedCM)
	}
	return nil
}

// Identity returns the radio identity of tower id
func Identity(id int) link.Identity {
	return link.Identity(IdentityBase + id)
}

// Requester starts an exchange without blocking. *link.Endpoint is one.
type Requester interface {
	RequestExchange(tag uint8, payload []byte) bool
}

// Options tunes a Tower. Zero fields take the defaults.
type Options struct {
	SampleInterval time.Duration
	FirstTrigger   time.Duration
	MissedLimit    int
	Listener       Listener
	Logger         logrus.FieldLogger
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.SampleInterval <= 0 {
		o.SampleInterval = DefaultSampleInterval
	}
	if o.FirstTrigger <= 0 {
		o.FirstTrigger = DefaultFirstTrigger
	}
	if o.MissedLimit <= 0 {
		o.MissedLimit = DefaultMissedLimit
	}
	if o.Listener == nil {
		o.Listener = NopListener{}
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Tower is the proxy of one remote level sensor
type Tower struct {
	cfg      Config
	req      Requester
	listener Listener
	log      logrus.FieldLogger
	now      func() time.Time
	first    time.Duration

	mu         sync.Mutex
	enabled    bool
	interval   time.Duration
	awaiting   bool
	tracker    *linkTracker
	smoother   *LevelSmoother
	alarm      bool
	last       Reading
	hasReading bool
}

// NewTower creates a tower that sends its requests through req
func NewTower(cfg Config, req Requester, opts Options) (*Tower, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	opts = opts.withDefaults()
	return &Tower{
		cfg:      cfg,
		req:      req,
		listener: opts.Listener,
		log:      opts.Logger.WithFields(logrus.Fields{"tower": cfg.ID, "identity": Identity(cfg.ID)}),
		now:      opts.Now,
		first:    opts.FirstTrigger,
		enabled:  cfg.Enabled,
		interval: opts.SampleInterval,
		tracker:  newLinkTracker(opts.MissedLimit),
		smoother: NewLevelSmoother(),
	}, nil
}

// Attach creates a tower bound to its own endpoint on radio
func Attach(radio *link.Radio, cfg Config, opts Options) (*Tower, error) {
	t, err := NewTower(cfg, nil, opts)
	if err != nil {
		return nil, err
	}
	ep, err := radio.Endpoint(Identity(cfg.ID), t)
	if err != nil {
		return nil, err
	}
	t.req = ep
	return t, nil
}

// ID returns the tower number
func (t *Tower) ID() int { return t.cfg.ID }

// Config returns the configuration with defaults applied
func (t *Tower) Config() Config { return t.cfg }

// Enabled reports whether Trigger sends requests
func (t *Tower) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetEnabled turns polling on or off
func (t *Tower) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// SampleInterval returns the polling period
func (t *Tower) SampleInterval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// SetSampleInterval changes the polling period, whole seconds 1..255
func (t *Tower) SetSampleInterval(d time.Duration) error {
	if d < time.Second || d > 255*time.Second {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, d)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = d
	return nil
}

// Connected reports whether the sensor answered recently
func (t *Tower) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tracker.connected
}

// Alarming reports whether the high water alarm is raised
func (t *Tower) Alarming() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alarm
}

// LastReading returns the latest valid reading
func (t *Tower) LastReading() (Reading, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasReading
}

// Trigger asks the sensor for a sample. It returns false when the tower is
// disabled or the previous request is still outstanding. A trigger whose
// predecessor got no reply counts as a miss.
func (t *Tower) Trigger() bool {
	t.mu.Lock()
	if !t.enabled || t.req == nil {
		t.mu.Unlock()
		return false
	}
	lost := false
	if t.awaiting {
		lost = t.tracker.missed()
	}
	t.awaiting = true
	seconds := intervalSeconds(t.interval)
	t.mu.Unlock()

	if lost {
		t.log.Debug("no reply to the last requests")
		t.listener.Disconnected(t.cfg.ID)
	}
	if !t.req.RequestExchange(ProtocolTag, []byte{seconds}) {
		t.log.Debug("previous request still outstanding")
		return false
	}
	return true
}

// intervalSeconds is the request payload: the period in whole seconds,
// clamped to 1..255
func intervalSeconds(d time.Duration) uint8 {
	s := d / time.Second
	if s < 1 {
		return 1
	}
	if s > 255 {
		return 255
	}
	return uint8(s)
}

// ResponseReceived implements link.Handler
func (t *Tower) ResponseReceived(tag uint8, payload []byte) {
	if err := t.HandleResponse(tag, payload); err != nil {
		t.log.WithError(err).Debug("reply ignored")
	}
}

// HandleResponse processes a reply. Any reply marks the sensor connected;
// only a 4 byte echo time inside the sensor's range produces a reading.
func (t *Tower) HandleResponse(tag uint8, payload []byte) error {
	t.mu.Lock()
	t.awaiting = false
	connected := t.tracker.replied()
	t.mu.Unlock()
	if connected {
		t.listener.Connected(t.cfg.ID)
	}

	us, err := DecodeEcho(payload)
	if err != nil {
		return err
	}
	if !ValidEcho(us) {
		return fmt.Errorf("%w: %d us", ErrEchoOutOfRange, us)
	}
	r, alarm := t.readSample(us)
	t.listener.WaterLevelChanged(r)
	if alarm {
		t.listener.HighWaterLevelAlarm(r)
	}
	return nil
}

// readSample updates the tower state and reports whether the alarm has
// just been raised.
func (t *Tower) readSample(us uint32) (Reading, bool) {
	distance := DistanceCM(us)
	level, percent := Level(distance, t.cfg.HeightCM)

	t.mu.Lock()
	defer t.mu.Unlock()

	r := Reading{
		Tower:      t.cfg.ID,
		Time:       t.now(),
		EchoMicros: us,
		DistanceCM: distance,
		LevelCM:    level,
		Percent:    percent,
		SmoothedCM: t.smoother.Update(level),
	}
	t.last = r
	t.hasReading = true

	raised := false
	if distance < float64(t.cfg.ReservedCM) {
		if t.tracker.connected && !t.alarm {
			t.alarm = true
			raised = true
		}
	} else {
		t.alarm = false
	}
	return r, raised
}

// Run triggers the sensor after the first trigger delay and then every
// sample interval until ctx is done.
func (t *Tower) Run(ctx context.Context) error {
	timer := time.NewTimer(t.first)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			t.Trigger()
			timer.Reset(t.SampleInterval())
		}
	}
}

// Wait blocks until the outstanding request, if any, has resolved
func (t *Tower) Wait() {
	if w, ok := t.req.(interface{ Wait() }); ok {
		w.Wait()
	}
}
