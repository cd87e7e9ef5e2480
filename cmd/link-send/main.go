// link-send: Send one request over the radio link and print the reply
//
// This tool frames a payload for a remote identity, transmits it and waits
// for the addressed reply. With -listen it instead prints every packet the
// radio receives until interrupted.
//
// Examples:
//
//	# Ask tower 0 for a sample, 10 s interval
//	./link-send -c etc/watertower/station.json -id 0x10 -tag 0 -hex 0a
//
//	# Repeat the request 5 times, one per second
//	./link-send -c etc/watertower/station.json -id 0x10 -hex 0a -repeat 5 -interval 1s
//
//	# Receive mode - print every packet
//	./link-send -c etc/watertower/station.json -listen
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/herlein/watertower/pkg/bus"
	"github.com/herlein/watertower/pkg/config"
	"github.com/herlein/watertower/pkg/link"
	"github.com/herlein/watertower/pkg/si4432"
)

func main() {
	configPath := flag.String("c", "", "Configuration file path (required)")
	verbose := flag.Bool("v", false, "Verbose output")

	// Send mode options
	idStr := flag.String("id", "0x10", "Remote identity (decimal or 0x hex)")
	tag := flag.Uint("tag", 0, "Protocol tag (0-255)")
	hexStr := flag.String("hex", "", "Payload (hex encoded)")
	dataStr := flag.String("data", "", "Payload (ASCII string)")
	repeat := flag.Int("repeat", 1, "Number of exchanges")
	interval := flag.Duration("interval", time.Second, "Delay between repeated exchanges")

	// Receive mode options
	listen := flag.Bool("listen", false, "Print received packets instead of sending")
	timeout := flag.Duration("timeout", 200*time.Millisecond, "Receive poll period")
	rawOutput := flag.Bool("raw", false, "Output raw hex only (for piping)")

	flag.Parse()

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

	radio, err := handle.NewRadio(configuration, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer radio.Close()

	if err := radio.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize radio: %v\n", err)
		os.Exit(1)
	}

	if *listen {
		runListen(radio, *timeout, *verbose, *rawOutput)
		return
	}

	id, err := strconv.ParseUint(*idStr, 0, 8)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid identity '%s': %v\n", *idStr, err)
		os.Exit(1)
	}
	if *tag > 255 {
		fmt.Fprintf(os.Stderr, "Error: Invalid tag %d\n", *tag)
		os.Exit(1)
	}

	var payload []byte
	switch {
	case *hexStr != "":
		if payload, err = hex.DecodeString(*hexStr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Invalid hex data: %v\n", err)
			os.Exit(1)
		}
	case *dataStr != "":
		payload = []byte(*dataStr)
	}

	failures := 0
	for i := 0; i < *repeat; i++ {
		if i > 0 {
			time.Sleep(*interval)
		}
		if *verbose {
			fmt.Printf("-> %s tag %d: % X\n", link.Identity(id), *tag, payload)
		}
		start := time.Now()
		resp, err := radio.Exchange(link.Identity(id), uint8(*tag), payload)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "Exchange %d failed: %v\n", i+1, err)
			continue
		}
		fmt.Printf("<- %s tag %d in %v: % X\n", resp.Identity, resp.Tag,
			time.Since(start).Round(time.Millisecond), resp.Payload)
	}

	if *verbose {
		printStats(radio.Stats())
	}
	if failures == *repeat {
		os.Exit(1)
	}
}

func runListen(radio *link.Radio, timeout time.Duration, verbose, rawOutput bool) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if !rawOutput {
		fmt.Println("Listening for packets (Ctrl+C to stop)...")
		fmt.Println()
	}

	packetsReceived := 0
	startTime := time.Now()

	for {
		select {
		case <-sigChan:
			if !rawOutput {
				fmt.Printf("\n\nReceived %d packets in %v\n",
					packetsReceived, time.Since(startTime).Round(time.Second))
				if verbose {
					printStats(radio.Stats())
				}
			}
			return
		default:
		}

		var packet []byte
		var rssi uint8
		err := radio.WithDevice(func(dev *si4432.Device) error {
			ok, err := dev.WaitForPacket(timeout)
			if err != nil || !ok {
				return err
			}
			rssi, _ = dev.RSSI()
			packet, err = dev.PacketReceived()
			return err
		})
		if err != nil {
			if errors.Is(err, si4432.ErrFIFOLength) {
				if verbose {
					fmt.Println("  [dropped] bad length")
				}
				continue
			}
			fmt.Fprintf(os.Stderr, "Error: Receive failed: %v\n", err)
			os.Exit(1)
		}
		if packet == nil {
			continue
		}

		packetsReceived++
		if rawOutput {
			fmt.Println(hex.EncodeToString(packet))
			continue
		}
		fmt.Printf("[%s] Packet #%d (%d bytes, RSSI %d):\n",
			time.Now().Format("15:04:05.000"), packetsReceived, len(packet), rssi)
		if resp, err := link.ParseResponse(packet); err == nil {
			fmt.Printf("  From:    %s tag %d\n", resp.Identity, resp.Tag)
			fmt.Printf("  Payload: % X\n", resp.Payload)
		} else {
			fmt.Printf("  Data:    % X\n", packet)
		}
	}
}

func printStats(s si4432.Stats) {
	fmt.Println("\nLink Statistics:")
	fmt.Printf("  Transmitted:       %d\n", s.Transmitted)
	fmt.Printf("  Received:          %d\n", s.Received)
	fmt.Printf("  CRC errors:        %d\n", s.CRCErrors)
	fmt.Printf("  Transmit timeouts: %d\n", s.TransmitTimeouts)
	fmt.Printf("  Reply timeouts:    %d\n", s.ReplyTimeouts)
	fmt.Printf("  FIFO errors:       %d\n", s.FIFOErrors)
}
