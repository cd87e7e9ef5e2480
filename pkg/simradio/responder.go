package simradio

import (
	"encoding/binary"
	"sync"
	"time"
)

// Reply answers every packet with [identity, tag, payload...], echoing the
// identity and tag of the request.
func Reply(payload ...byte) Responder {
	return func(packet []byte) []byte {
		if len(packet) < 2 {
			return nil
		}
		return append([]byte{packet[0], packet[1]}, payload...)
	}
}

// ReplyAs answers every packet as identity, whatever identity was asked
func ReplyAs(identity uint8, payload ...byte) Responder {
	return func(packet []byte) []byte {
		if len(packet) < 2 {
			return nil
		}
		return append([]byte{identity, packet[1]}, payload...)
	}
}

// EchoResponder simulates ultrasonic sensors: echo returns the round trip
// time in microseconds for an identity, or false when that sensor is
// absent. The reply payload is the time as 4 little endian bytes.
func EchoResponder(echo func(identity uint8) (uint32, bool)) Responder {
	return func(packet []byte) []byte {
		if len(packet) < 2 {
			return nil
		}
		us, ok := echo(packet[0])
		if !ok {
			return nil
		}
		reply := []byte{packet[0], packet[1], 0, 0, 0, 0}
		binary.LittleEndian.PutUint32(reply[2:], us)
		return reply
	}
}

// Clock is a virtual si4432.Clock: Sleep advances Now without blocking.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a virtual clock starting at an arbitrary fixed instant
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the virtual time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the virtual time by d
func (c *Clock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
