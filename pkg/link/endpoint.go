package link

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Handler receives the replies of an Endpoint
type Handler interface {
	ResponseReceived(tag uint8, payload []byte)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(tag uint8, payload []byte)

// ResponseReceived calls f
func (f HandlerFunc) ResponseReceived(tag uint8, payload []byte) { f(tag, payload) }

// Endpoint is one identity's view of the radio
type Endpoint struct {
	radio   *Radio
	id      Identity
	handler Handler
	log     logrus.FieldLogger

	busy atomic.Bool
	wg   sync.WaitGroup
}

// Identity returns the address this endpoint uses
func (e *Endpoint) Identity() Identity {
	return e.id
}

// Busy reports whether an exchange is outstanding
func (e *Endpoint) Busy() bool {
	return e.busy.Load()
}

// RequestExchange starts an exchange in the background and returns true,
// or returns false at once if the previous one has not resolved. The
// payload is copied. Only a correctly addressed reply reaches the
// handler; failures are logged and dropped.
func (e *Endpoint) RequestExchange(tag uint8, payload []byte) bool {
	if !e.busy.CompareAndSwap(false, true) {
		return false
	}
	p := append([]byte(nil), payload...)
	e.wg.Add(1)
	go e.run(tag, p)
	return true
}

func (e *Endpoint) run(tag uint8, payload []byte) {
	defer e.wg.Done()

	// busy stays set until the handler returns
	defer e.busy.Store(false)

	resp, err := e.radio.Exchange(e.id, tag, payload)
	if err != nil {
		e.log.WithError(err).Debug("exchange failed")
		return
	}
	if e.handler != nil {
		e.handler.ResponseReceived(resp.Tag, resp.Payload)
	}
}

// Wait blocks until no exchange started by this endpoint is running
func (e *Endpoint) Wait() {
	e.wg.Wait()
}
