package watertower

import "github.com/sirupsen/logrus"

// Listener receives tower events. Calls come from the radio's exchange
// goroutines and from Run; implementations must be safe for concurrent use.
type Listener interface {
	WaterLevelChanged(r Reading)
	HighWaterLevelAlarm(r Reading)
	Connected(tower int)
	Disconnected(tower int)
}

// NopListener ignores every event
type NopListener struct{}

func (NopListener) WaterLevelChanged(Reading)   {}
func (NopListener) HighWaterLevelAlarm(Reading) {}
func (NopListener) Connected(int)               {}
func (NopListener) Disconnected(int)            {}

// LogListener writes every event to a logger
type LogListener struct {
	Log logrus.FieldLogger
}

func (l LogListener) WaterLevelChanged(r Reading) {
	l.Log.WithFields(logrus.Fields{
		"tower":       r.Tower,
		"level_cm":    r.LevelCM,
		"percent":     r.Percent,
		"smoothed_cm": r.SmoothedCM,
		"echo_us":     r.EchoMicros,
	}).Info("water level")
}

func (l LogListener) HighWaterLevelAlarm(r Reading) {
	l.Log.WithFields(logrus.Fields{
		"tower":       r.Tower,
		"distance_cm": r.DistanceCM,
	}).Warn("high water level alarm")
}

func (l LogListener) Connected(tower int) {
	l.Log.WithField("tower", tower).Info("tower connected")
}

func (l LogListener) Disconnected(tower int) {
	l.Log.WithField("tower", tower).Warn("tower disconnected")
}

// Listeners fans events out to several listeners in order
type Listeners []Listener

func (ls Listeners) WaterLevelChanged(r Reading) {
	for _, l := range ls {
		l.WaterLevelChanged(r)
	}
}

func (ls Listeners) HighWaterLevelAlarm(r Reading) {
	for _, l := range ls {
		l.HighWaterLevelAlarm(r)
	}
}

func (ls Listeners) Connected(tower int) {
	for _, l := range ls {
		l.Connected(tower)
	}
}

func (ls Listeners) Disconnected(tower int) {
	for _, l := range ls {
		l.Disconnected(tower)
	}
}
