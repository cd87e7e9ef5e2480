package ch341

// USB identifiers of the CH341A in SPI/I2C mode
const (
	VendorID  = 0x1A86
	ProductID = 0x5512
)

// Bulk endpoint numbers (0x02 OUT, 0x82 IN)
const (
	EndpointOut = 2
	EndpointIn  = 2
)

// PacketLength is the size of one bulk packet. Every packet starts with
// a command byte, so one SPI stream packet carries 31 data bytes.
const PacketLength = 32

// Commands
const (
	CmdSPIStream = 0xA8
	CmdI2CStream = 0xAA
	CmdUIOStream = 0xAB
)

// I2C stream sub-commands, used here only to set the stream clock
const (
	I2CSet  = 0x60
	I2CEnd  = 0x00
	I2C750K = 0x03
)

// UIO stream sub-commands
const (
	UIODir = 0x40
	UIOOut = 0x80
	UIOEnd = 0x20
)

// Parallel port lines
const (
	PinCS0 = 1 << 0 // Si4432 nSEL
	PinD1  = 1 << 1 // Si4432 SDN
	PinSCK = 1 << 3
	PinDO  = 1 << 5

	// D0..D5 are outputs
	outputDirections = 0x3F
	// outputs idle: CS lines high, clock low, data high
	idleOutputs = (outputDirections | PinDO) &^ PinSCK
)
