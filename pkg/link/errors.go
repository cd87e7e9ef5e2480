package link

import "errors"

// Errors returned by Radio and Endpoint
var (
	// ErrDeviceClaimed is returned when a device is handed to a second Radio
	ErrDeviceClaimed = errors.New("device already belongs to a radio")
	// ErrMisaddressed is returned when a reply names another identity
	ErrMisaddressed = errors.New("reply carries another identity")
	// ErrShortResponse is returned for a reply without identity and tag
	ErrShortResponse = errors.New("reply shorter than its header")
	// ErrPayloadTooLong is returned when a framed request exceeds the FIFO
	ErrPayloadTooLong = errors.New("payload does not fit in one packet")
	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("radio closed")
)
