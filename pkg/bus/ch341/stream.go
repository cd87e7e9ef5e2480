package ch341

// ReverseBits mirrors the bit order of b. The CH341 shifts SPI data least
// significant bit first while the Si4432 expects MSB first.
func ReverseBits(b byte) byte {
	b = b>>4 | b<<4
	b = (b&0xCC)>>2 | (b&0x33)<<2
	b = (b&0xAA)>>1 | (b&0x55)<<1
	return b
}

// uioPacket sets the direction and level of D0..D5
func uioPacket(outputs byte) []byte {
	return []byte{
		CmdUIOStream,
		UIOOut | (outputs & outputDirections),
		UIODir | outputDirections,
		UIOEnd,
	}
}

// speedPacket selects the stream clock
func speedPacket(speed byte) []byte {
	return []byte{CmdI2CStream, I2CSet | speed, I2CEnd}
}

// spiPackets splits w into SPI stream packets of at most PacketLength
// bytes, bit-reversed for the wire.
func spiPackets(w []byte) [][]byte {
	var packets [][]byte
	for len(w) > 0 {
		n := len(w)
		if n > PacketLength-1 {
			n = PacketLength - 1
		}
		p := make([]byte, 1+n)
		p[0] = CmdSPIStream
		for i, b := range w[:n] {
			p[1+i] = ReverseBits(b)
		}
		packets = append(packets, p)
		w = w[n:]
	}
	return packets
}
