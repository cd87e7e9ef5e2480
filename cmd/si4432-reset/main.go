// si4432-reset resets the Si4432 and checks that power-on-reset completes.
// With -usb it resets the CH341A bridges at the USB level instead.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/gousb"

	"github.com/herlein/watertower/pkg/bus"
	"github.com/herlein/watertower/pkg/bus/ch341"
	"github.com/herlein/watertower/pkg/config"
)

func main() {
	configPath := flag.String("c", "", "Configuration file path (default: built-in defaults)")
	busKind := flag.String("bus", "", "Bus kind: spidev, ch341, buspirate or sim")
	port := flag.String("port", "", "spidev device, serial port or CH341A selector")
	soft := flag.Bool("soft", false, "Software reset through the mode register instead of SDN")
	usbReset := flag.Bool("usb", false, "Reset every CH341A bridge at the USB level")
	attempts := flag.Int("attempts", 3, "Reset attempts before giving up")
	flag.Parse()

	if *usbReset {
		os.Exit(resetBridges(*attempts))
	}

	configuration := config.Default()
	if *configPath != "" {
		var err error
		if configuration, err = config.LoadFromFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *busKind != "" {
		configuration.Bus.Kind = *busKind
	}
	if *port != "" {
		configuration.Bus.Port = *port
	}

	handle, err := bus.Open(configuration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open %s bus: %v\n", configuration.BusKind(), err)
		os.Exit(1)
	}
	defer handle.Close()

	device, err := handle.NewDevice(configuration, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	kind := "Hard"
	reset := device.HardReset
	if *soft || handle.Shutdown == nil {
		kind = "Soft"
		reset = device.SoftReset
	}

	for attempt := 0; attempt < *attempts; attempt++ {
		start := time.Now()
		if err := reset(); err != nil {
			fmt.Printf("Attempt %d: %s reset failed: %v\n", attempt+1, kind, err)
			continue
		}
		mode, err := device.ReadMode()
		if err != nil {
			fmt.Printf("Attempt %d: Failed to read mode: %v\n", attempt+1, err)
			continue
		}
		fmt.Printf("%s reset OK in %v\n", kind, time.Since(start).Round(time.Millisecond))
		fmt.Printf("  Bus:      %s\n", handle.Name)
		fmt.Printf("  Version:  0x%02X\n", device.Version())
		fmt.Printf("  Mode:     %s\n", mode)
		return
	}

	fmt.Fprintf(os.Stderr, "Error: Reset failed after %d attempts\n", *attempts)
	os.Exit(1)
}

func resetBridges(attempts int) int {
	ctx := gousb.NewContext()
	defer ctx.Close()

	for attempt := 0; attempt < attempts; attempt++ {
		devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
			return desc.Vendor == gousb.ID(ch341.VendorID) && desc.Product == gousb.ID(ch341.ProductID)
		})

		if err != nil {
			fmt.Printf("Attempt %d: Error finding bridges: %v\n", attempt+1, err)
			time.Sleep(time.Second)
			continue
		}

		if len(devs) == 0 {
			fmt.Printf("Attempt %d: No bridges found\n", attempt+1)
			time.Sleep(time.Second)
			continue
		}

		fmt.Printf("Found %d bridge(s)\n", len(devs))
		for i, dev := range devs {
			fmt.Printf("  Bridge %d: %d:%d\n", i, dev.Desc.Bus, dev.Desc.Address)
			if err := dev.Reset(); err != nil {
				fmt.Printf("    Reset failed: %v\n", err)
			} else {
				fmt.Printf("    Reset OK\n")
			}
			dev.Close()
		}
		return 0
	}

	fmt.Printf("Failed to find/reset bridges after %d attempts\n", attempts)
	return 1
}
