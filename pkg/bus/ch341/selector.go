package ch341

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/gousb"
)

var (
	ErrNoDevice        = errors.New("no CH341A bridges found")
	ErrBadSelector     = errors.New("invalid device selector")
	ErrAmbiguousSerial = errors.New("several bridges share the serial")
)

// DeviceSelector specifies how to identify a CH341A bridge
// Supported formats:
//   - ""           : Use first available device
//   - "serial"     : Match by serial number (e.g., "0001")
//   - "bus:addr"   : Match by USB bus and address (e.g., "1:10")
//   - "#N"         : Use Nth device, 0-indexed (e.g., "#0", "#1")
type DeviceSelector string

// criteria is a parsed selector. index is -1 unless "#N" was given.
type criteria struct {
	index     int
	bus, addr int
	byAddr    bool
	serial    string
}

func (s DeviceSelector) parse() (criteria, error) {
	sel := string(s)
	c := criteria{index: -1}
	switch {
	case sel == "":
		c.index = 0
	case strings.HasPrefix(sel, "#"):
		n, err := strconv.Atoi(sel[1:])
		if err != nil || n < 0 {
			return c, fmt.Errorf("%w: index %q", ErrBadSelector, sel)
		}
		c.index = n
	case strings.Contains(sel, ":"):
		bus, addr, _ := strings.Cut(sel, ":")
		var err error
		if c.bus, err = strconv.Atoi(bus); err != nil {
			return c, fmt.Errorf("%w: bus %q", ErrBadSelector, bus)
		}
		if c.addr, err = strconv.Atoi(addr); err != nil {
			return c, fmt.Errorf("%w: address %q", ErrBadSelector, addr)
		}
		c.byAddr = true
	default:
		c.serial = sel
	}
	return c, nil
}

// pick returns the position of the single device matching c. Devices are
// identified by their bus, address and serial, in enumeration order.
func (c criteria) pick(buses, addrs []int, serials []string) (int, error) {
	if len(serials) == 0 {
		return -1, ErrNoDevice
	}
	if c.index >= 0 {
		if c.index >= len(serials) {
			return -1, fmt.Errorf("device index %d out of range (found %d devices)", c.index, len(serials))
		}
		return c.index, nil
	}
	found := -1
	for i := range serials {
		var ok bool
		if c.byAddr {
			ok = buses[i] == c.bus && addrs[i] == c.addr
		} else {
			ok = serials[i] == c.serial
		}
		if !ok {
			continue
		}
		if found >= 0 {
			return -1, fmt.Errorf("%w %s; use bus:addr (e.g., 1:10) or index (e.g., #0)", ErrAmbiguousSerial, c.serial)
		}
		found = i
	}
	if found < 0 {
		if c.byAddr {
			return -1, fmt.Errorf("no CH341A found at bus %d address %d", c.bus, c.addr)
		}
		return -1, fmt.Errorf("no CH341A found with serial %s", c.serial)
	}
	return found, nil
}

// SelectDevice opens the CH341A matching the selector. Every other bridge
// is closed again.
func SelectDevice(context *gousb.Context, selector DeviceSelector) (*Device, error) {
	c, err := selector.parse()
	if err != nil {
		return nil, err
	}
	devices, err := FindAllDevices(context)
	if err != nil {
		return nil, err
	}

	buses := make([]int, len(devices))
	addrs := make([]int, len(devices))
	serials := make([]string, len(devices))
	for i, d := range devices {
		buses[i], addrs[i], serials[i] = d.Bus, d.Address, d.Serial
	}
	chosen, err := c.pick(buses, addrs, serials)

	for i, d := range devices {
		if i != chosen {
			d.Close()
		}
	}
	if err != nil {
		return nil, err
	}
	return devices[chosen], nil
}

// DeviceFlagUsage returns the usage text of the -d flag
func DeviceFlagUsage() string {
	return `CH341A selector. Formats:
    ""        - Use first available bridge
    "serial"  - Match by serial number (e.g., "0001")
    "bus:addr"- Match by USB location (e.g., "1:10")
    "#N"      - Use Nth bridge, 0-indexed (e.g., "#0", "#1")`
}
