// Package publish mirrors tower state into Redis for dashboards and home
// automation.
//
// Each tower gets one hash, <prefix>:tower:<id>, holding its latest
// reading and link state. Every event is also published as JSON on the
// <prefix>:events channel.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/herlein/watertower/pkg/watertower"
)

// Defaults
const (
	DefaultPrefix  = "watertower"
	DefaultTimeout = time.Second
)

// Event kinds on the events channel
const (
	EventLevel        = "level"
	EventAlarm        = "alarm"
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

// Options configures a RedisListener
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Timeout  time.Duration // per command
	Logger   logrus.FieldLogger
}

// Event is the message published for every tower event
type Event struct {
	Event   string              `json:"event"`
	Tower   int                 `json:"tower"`
	Time    time.Time           `json:"time"`
	Reading *watertower.Reading `json:"reading,omitempty"`
}

// RedisListener is a watertower.Listener writing to Redis. Write failures
// are logged and dropped so a Redis outage never stalls the radio.
type RedisListener struct {
	db      *redis.Client
	prefix  string
	timeout time.Duration
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewRedis connects lazily to the server at opts.Addr
func NewRedis(opts Options) *RedisListener {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	return &RedisListener{
		db: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		prefix:  opts.Prefix,
		timeout: opts.Timeout,
		log:     opts.Logger.WithField("redis", opts.Addr),
		now:     time.Now,
	}
}

// Ping checks that the server answers
func (l *RedisListener) Ping(ctx context.Context) error {
	if err := l.db.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (l *RedisListener) Close() error {
	return l.db.Close()
}

// TowerKey returns the hash key of a tower
func (l *RedisListener) TowerKey(tower int) string {
	return l.prefix + ":tower:" + strconv.Itoa(tower)
}

// EventsChannel returns the pub/sub channel events are published on
func (l *RedisListener) EventsChannel() string {
	return l.prefix + ":events"
}

// WaterLevelChanged stores the reading in the tower hash and publishes it
func (l *RedisListener) WaterLevelChanged(r watertower.Reading) {
	l.update(EventLevel, r.Tower, &r, map[string]interface{}{
		"level_cm":    formatCM(r.LevelCM),
		"smoothed_cm": formatCM(r.SmoothedCM),
		"distance_cm": formatCM(r.DistanceCM),
		"percent":     r.Percent,
		"echo_us":     r.EchoMicros,
		"updated":     r.Time.UTC().Format(time.RFC3339),
	})
}

// HighWaterLevelAlarm records the alarm time and publishes the alarm
func (l *RedisListener) HighWaterLevelAlarm(r watertower.Reading) {
	l.update(EventAlarm, r.Tower, &r, map[string]interface{}{
		"last_alarm": r.Time.UTC().Format(time.RFC3339),
	})
}

// Connected marks the tower online
func (l *RedisListener) Connected(tower int) {
	l.update(EventConnected, tower, nil, map[string]interface{}{"state": "online"})
}

// Disconnected marks the tower offline
func (l *RedisListener) Disconnected(tower int) {
	l.update(EventDisconnected, tower, nil, map[string]interface{}{"state": "offline"})
}

func (l *RedisListener) update(kind string, tower int, r *watertower.Reading, fields map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	ev := Event{Event: kind, Tower: tower, Time: l.now(), Reading: r}
	if r != nil {
		ev.Time = r.Time
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		l.log.WithError(err).Warn("failed to encode event")
		return
	}

	_, err = l.db.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, l.TowerKey(tower), fields)
		p.Publish(ctx, l.EventsChannel(), msg)
		return nil
	})
	if err != nil {
		l.log.WithError(err).WithField("tower", tower).Warnf("failed to publish %s", kind)
		return
	}
	l.log.WithField("tower", tower).Tracef("published %s", kind)
}

func formatCM(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
