// si4432-load: Apply a link configuration to the Si4432 and verify it
//
// This tool resets the transceiver, programs the frequency, data rate,
// channel and signature taken from the station file (or a profile) and
// reads every programmed register back.
//
// Examples:
//
//	# Apply the radio section of the station file
//	./si4432-load -c etc/watertower/station.json
//
//	# Apply a named profile instead
//	./si4432-load -c etc/watertower/station.json -profile 868-100k
//
//	# Apply a saved profile file
//	./si4432-load -c etc/watertower/station.json -f etc/profiles/433-20k.json
//
//	# List or export the built-in profiles
//	./si4432-load -list
//	./si4432-load -export etc/profiles
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/herlein/watertower/pkg/bus"
	"github.com/herlein/watertower/pkg/config"
	"github.com/herlein/watertower/pkg/profiles"
	"github.com/herlein/watertower/pkg/si4432"
)

func main() {
	configPath := flag.String("c", "", "Configuration file path (required)")
	profileName := flag.String("profile", "", "Apply this built-in profile")
	profileFile := flag.String("f", "", "Apply a profile saved as JSON")
	list := flag.Bool("list", false, "List built-in profiles and exit")
	export := flag.String("export", "", "Write every built-in profile to this directory and exit")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	if *list {
		for _, name := range profiles.List() {
			p, _ := profiles.Get(name)
			fmt.Printf("  %-14s %s\n", p.Name, p.Description)
		}
		return
	}
	if *export != "" {
		if err := profiles.GenerateAll(*export); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Profiles written to: %s\n", *export)
		return
	}

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: Configuration file (-c) is required")
		flag.PrintDefaults()
		os.Exit(1)
	}

	configuration, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	settings, err := configuration.ToSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	switch {
	case *profileFile != "":
		pc, err := profiles.LoadProfileFromFile(*profileFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		settings = pc.Profile.Settings
	case *profileName != "":
		p, err := profiles.Get(*profileName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		settings = p.Settings
	}

	log, err := config.NewLogger(configuration.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	handle, err := bus.Open(configuration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open %s bus: %v\n", configuration.BusKind(), err)
		os.Exit(1)
	}
	defer handle.Close()

	device, err := handle.NewDevice(configuration, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Resetting transceiver on %s...\n", handle.Name)
	}
	if err := device.HardReset(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Reset failed: %v\n", err)
		os.Exit(1)
	}

	if err := config.ApplyToDevice(device, settings); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration applied and verified")
	if *verbose {
		printSettings(device.Settings())
	}
}

func printSettings(s si4432.Settings) {
	fmt.Println("\nLink Settings:")
	fmt.Printf("  Frequency:    %.3f MHz\n", s.FrequencyMHz)
	fmt.Printf("  Baud Rate:    %d kbps\n", s.BaudKbps)
	fmt.Printf("  Channel:      %d\n", s.Channel)
	fmt.Printf("  Signature:    0x%04X\n", s.Signature)
}
