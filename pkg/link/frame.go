package link

import (
	"fmt"
)

// Identity addresses one remote station on the shared channel
type Identity uint8

// String formats the identity as hex
func (id Identity) String() string {
	return fmt.Sprintf("0x%02X", uint8(id))
}

// HeaderSize is the identity byte plus the protocol tag byte
const HeaderSize = 2

// Response is a reply parsed from the receive FIFO
type Response struct {
	Identity Identity
	Tag      uint8
	Payload  []byte
}

// Frame builds [identity][tag][payload...]. The payload is copied.
func Frame(id Identity, tag uint8, payload []byte) []byte {
	b := make([]byte, HeaderSize+len(payload))
	b[0] = uint8(id)
	b[1] = tag
	copy(b[HeaderSize:], payload)
	return b
}

// ParseResponse splits a received packet into its header and payload
func ParseResponse(packet []byte) (Response, error) {
	if len(packet) < HeaderSize {
		return Response{}, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(packet))
	}
	return Response{
		Identity: Identity(packet[0]),
		Tag:      packet[1],
		Payload:  append([]byte(nil), packet[HeaderSize:]...),
	}, nil
}
