// si4432-dump: Dump the Si4432 registers to a JSON file
//
// This tool connects to the transceiver, checks the device type and saves
// every control register together with the decoded mode, RSSI and link
// settings. The chip is not reset, so the dump shows its current state.
//
// Examples:
//
//	# List CH341A bridges
//	./si4432-dump -l
//
//	# Dump through the bus named in the station file
//	./si4432-dump -c etc/watertower/station.json -o dump.json
//
//	# Dump through a Bus Pirate to stdout
//	./si4432-dump -bus buspirate -port /dev/ttyUSB0 -json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/gousb"

	"github.com/herlein/watertower/pkg/bus"
	"github.com/herlein/watertower/pkg/bus/ch341"
	"github.com/herlein/watertower/pkg/config"
)

func main() {
	configPath := flag.String("c", "", "Configuration file path (default: built-in defaults)")
	busKind := flag.String("bus", "", "Bus kind: spidev, ch341, buspirate or sim")
	port := flag.String("port", "", "spidev device, serial port or CH341A selector\n"+ch341.DeviceFlagUsage())
	outputFile := flag.String("o", "", "Output file path (default: etc/watertower/dumps/<bus>.json)")
	listOnly := flag.Bool("l", false, "List CH341A bridges only, don't dump")
	jsonOutput := flag.Bool("json", false, "Output dump to stdout as JSON instead of file")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	if *listOnly {
		listBridges()
		return
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

	if *verbose {
		fmt.Printf("Connected to: %s\n", handle.Name)
	}

	device, err := handle.NewDevice(configuration, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	dump, err := config.DumpFromDevice(device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to dump registers: %v\n", err)
		os.Exit(1)
	}
	dump.Bus = handle.Name

	if *jsonOutput {
		data, err := json.MarshalIndent(dump, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to marshal dump: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	path := *outputFile
	if path == "" {
		path = config.GetDumpPath(handle.Kind)
	}
	if err := config.SaveDump(dump, path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to save dump: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Registers saved to: %s\n", path)

	if *verbose {
		printSummary(dump)
	}
}

func listBridges() {
	context := gousb.NewContext()
	defer context.Close()

	devices, err := ch341.FindAllDevices(context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to enumerate devices: %v\n", err)
		os.Exit(1)
	}

	if len(devices) == 0 {
		fmt.Println("No CH341A bridges found")
		return
	}

	fmt.Printf("Found %d CH341A bridge(s):\n\n", len(devices))

	for i, device := range devices {
		defer device.Close()

		fmt.Printf("Bridge %d:\n", i+1)
		fmt.Printf("  Manufacturer: %s\n", device.Manufacturer)
		fmt.Printf("  Product:      %s\n", device.Product)
		fmt.Printf("  Serial:       %s\n", device.Serial)
		fmt.Printf("  Location:     %d:%d\n", device.Bus, device.Address)
		fmt.Println()
	}
}

func printSummary(dump *config.DeviceDump) {
	regs := dump.Registers
	fmt.Println("\nRegister Summary:")
	fmt.Printf("  Version:      0x%02X\n", dump.Version)
	fmt.Printf("  Mode:         %s\n", dump.Mode)
	fmt.Printf("  RSSI:         %d\n", dump.RSSI)
	for _, v := range regs.Named {
		fmt.Printf("  %-24s 0x%02X: % X\n", v.Name, v.Addr, v.Bytes)
	}
}
