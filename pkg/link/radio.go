// Package link shares one si4432 transceiver among any number of remote
// station identities.
//
// A Radio owns the device and a lock held for the whole of every
// exchange, so transfers of different identities never interleave. Each
// identity talks through an Endpoint, which runs at most one exchange at a
// time and refuses, rather than queues, a second one.
package link

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/herlein/watertower/pkg/si4432"
)

// DefaultReplyTimeout bounds the wait for a reply after the request is sent
const DefaultReplyTimeout = 500 * time.Millisecond

// Options configures a Radio
type Options struct {
	ReplyTimeout time.Duration
	Logger       logrus.FieldLogger
}

// Radio is the single owner of a transceiver
type Radio struct {
	mu          sync.Mutex
	dev         *si4432.Device
	initialized bool
	closed      bool

	replyTimeout time.Duration
	log          logrus.FieldLogger
}

// New claims dev. A device can be claimed by one Radio only; a second
// claim fails with ErrDeviceClaimed until the first Radio is closed.
func New(dev *si4432.Device, opts Options) (*Radio, error) {
	if !dev.Claim() {
		return nil, ErrDeviceClaimed
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = DefaultReplyTimeout
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	return &Radio{
		dev:          dev,
		replyTimeout: opts.ReplyTimeout,
		log:          opts.Logger,
	}, nil
}

// Init brings the hardware up once. Later calls return nil without
// touching the chip; a failed bring-up is retried by the next call.
func (r *Radio) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initLocked()
}

func (r *Radio) initLocked() error {
	if r.closed {
		return ErrClosed
	}
	if r.initialized {
		return nil
	}
	if err := r.dev.HardReset(); err != nil {
		return fmt.Errorf("failed to bring up radio: %w", err)
	}
	r.initialized = true
	s := r.dev.Settings()
	r.log.WithFields(logrus.Fields{
		"frequency_mhz": s.FrequencyMHz,
		"baud_kbps":     s.BaudKbps,
		"channel":       s.Channel,
	}).Info("radio initialized")
	return nil
}

// Configure applies link settings, bringing the hardware up first if
// needed. Out of range frequency or baud values keep their previous value.
func (r *Radio) Configure(s si4432.Settings) (si4432.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.initLocked(); err != nil {
		return r.dev.Settings(), err
	}
	return r.dev.Configure(s)
}

// Exchange sends [id][tag][payload] and waits for the reply. It blocks
// until the radio is free and holds it until the exchange resolves.
func (r *Radio) Exchange(id Identity, tag uint8, payload []byte) (Response, error) {
	packet := Frame(id, tag, payload)
	if len(packet) > r.dev.Registers().FIFODepth {
		return Response{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLong, len(payload))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.initLocked(); err != nil {
		return Response{}, err
	}

	log := r.log.WithFields(logrus.Fields{"identity": id, "tag": tag})
	log.Tracef("request % X", payload)

	reply, err := r.dev.Transmit(packet, true, r.replyTimeout)
	if err != nil {
		return Response{}, fmt.Errorf("exchange with %s: %w", id, err)
	}
	resp, err := ParseResponse(reply)
	if err != nil {
		return Response{}, fmt.Errorf("exchange with %s: %w", id, err)
	}
	if resp.Identity != id {
		log.Debugf("dropping reply addressed to %s", resp.Identity)
		return resp, fmt.Errorf("%w: asked %s, got %s", ErrMisaddressed, id, resp.Identity)
	}
	log.Tracef("reply % X", resp.Payload)
	return resp, nil
}

// WithDevice runs fn with exclusive use of the device, for diagnostics
func (r *Radio) WithDevice(fn func(dev *si4432.Device) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return fn(r.dev)
}

// Stats returns the device counters
func (r *Radio) Stats() si4432.Stats {
	return r.dev.Stats()
}

// Endpoint binds an identity to the radio, initializing the hardware on
// first use.
func (r *Radio) Endpoint(id Identity, h Handler) (*Endpoint, error) {
	if err := r.Init(); err != nil {
		return nil, err
	}
	return &Endpoint{
		radio:   r,
		id:      id,
		handler: h,
		log:     r.log.WithField("identity", id),
	}, nil
}

// Close powers the chip down when possible and releases the device. It
// waits for an exchange in progress.
func (r *Radio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.dev.Release()
	if r.initialized {
		return r.dev.PowerOff()
	}
	return nil
}
