package publish

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/herlein/watertower/pkg/watertower"
)

var sample = watertower.Reading{
	Tower:      2,
	Time:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	EchoMicros: 5882,
	DistanceCM: 99.994,
	LevelCM:    100.006,
	Percent:    50,
	SmoothedCM: 98.26,
}

func newTestListener(t *testing.T) (*RedisListener, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	l := NewRedis(Options{Addr: s.Addr(), Prefix: "test"})
	t.Cleanup(func() { l.Close() })
	return l, s
}

func TestWaterLevelChanged(t *testing.T) {
	l, s := newTestListener(t)
	if err := l.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}

	l.WaterLevelChanged(sample)

	key := "test:tower:2"
	if key != l.TowerKey(2) {
		t.Fatalf("key = %q", l.TowerKey(2))
	}
	for field, want := range map[string]string{
		"level_cm":    "100.0",
		"smoothed_cm": "98.3",
		"distance_cm": "100.0",
		"percent":     "50",
		"echo_us":     "5882",
		"updated":     "2024-05-01T12:00:00Z",
	} {
		if got := s.HGet(key, field); got != want {
			t.Errorf("%s = %q, want %q", field, got, want)
		}
	}
}

func TestConnectivityAndAlarm(t *testing.T) {
	l, s := newTestListener(t)

	l.Connected(1)
	if got := s.HGet("test:tower:1", "state"); got != "online" {
		t.Errorf("state = %q", got)
	}
	l.Disconnected(1)
	if got := s.HGet("test:tower:1", "state"); got != "offline" {
		t.Errorf("state = %q", got)
	}

	l.HighWaterLevelAlarm(sample)
	if got := s.HGet("test:tower:2", "last_alarm"); got != "2024-05-01T12:00:00Z" {
		t.Errorf("last_alarm = %q", got)
	}
}

func TestEventsPublished(t *testing.T) {
	l, s := newTestListener(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer c.Close()
	sub := c.Subscribe(ctx, l.EventsChannel())
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	l.HighWaterLevelAlarm(sample)

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Event != EventAlarm || ev.Tower != 2 || ev.Reading == nil || ev.Reading.Percent != 50 {
		t.Errorf("event = %+v", ev)
	}
}

func TestServerDown(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	addr := s.Addr()
	s.Close()

	l := NewRedis(Options{Addr: addr, Timeout: 100 * time.Millisecond})
	defer l.Close()

	if err := l.Ping(context.Background()); err == nil {
		t.Error("ping succeeded with the server down")
	}
	// must return without panicking
	l.WaterLevelChanged(sample)
	l.Connected(0)
}
