package si4432

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/herlein/watertower/pkg/registers"
)

// Default timing values
const (
	DefaultPollInterval    = 200 * time.Microsecond
	DefaultTransmitTimeout = 200 * time.Millisecond
	DefaultPORTimeout      = time.Second
	DefaultPowerOffSettle  = time.Millisecond
	DefaultPowerOnSettle   = 20 * time.Millisecond

	hardResetPollInterval = 50 * time.Millisecond
	softResetPollInterval = time.Millisecond
)

// Clock is the time source of every deadline loop in the driver.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock is the wall clock
var SystemClock Clock = systemClock{}

// Options configures a Device. Zero fields take the Default* values.
type Options struct {
	// Registers is the register layout of the chip variant, registers.Si4432
	// when nil.
	Registers *registers.Map

	// Shutdown drives SDN. Without it HardReset falls back to a soft reset.
	Shutdown PinOutput
	// IRQ samples nIRQ. Without it every poll reads the status registers.
	IRQ PinInput

	PollInterval    time.Duration
	TransmitTimeout time.Duration
	PORTimeout      time.Duration
	PowerOffSettle  time.Duration
	PowerOnSettle   time.Duration

	Clock  Clock
	Logger logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.Registers == nil {
		o.Registers = &registers.Si4432
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.TransmitTimeout <= 0 {
		o.TransmitTimeout = DefaultTransmitTimeout
	}
	if o.PORTimeout <= 0 {
		o.PORTimeout = DefaultPORTimeout
	}
	if o.PowerOffSettle <= 0 {
		o.PowerOffSettle = DefaultPowerOffSettle
	}
	if o.PowerOnSettle <= 0 {
		o.PowerOnSettle = DefaultPowerOnSettle
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	return o
}
