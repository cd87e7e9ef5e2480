// link-soak: Measure link reliability to one tower at rising request rates
//
// Each run sends -n level requests to the tower, waiting -delay between
// them, and counts valid replies. The delay halves after every run until
// it falls below -min-delay or fewer than half the requests are answered.
//
// Usage:
//
//	./link-soak -c etc/watertower/station.json -tower 0
//	./link-soak -c etc/watertower/station.json -tower 2 -n 50 -delay 500ms -min-delay 20ms
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/herlein/watertower/pkg/bus"
	"github.com/herlein/watertower/pkg/config"
	"github.com/herlein/watertower/pkg/link"
	"github.com/herlein/watertower/pkg/scanner"
	"github.com/herlein/watertower/pkg/si4432"
	"github.com/herlein/watertower/pkg/simradio"
	"github.com/herlein/watertower/pkg/watertower"
)

type runResult struct {
	Delay       time.Duration
	Sent        int
	Received    int
	Invalid     int
	Failed      int
	SuccessRate float64
	AvgDBm      float32
	AvgLatency  time.Duration
}

func main() {
	configPath := flag.String("c", config.GetConfigPath("station"), "Configuration file path")
	towerID := flag.Int("tower", 0, "Tower number (0-5)")
	count := flag.Int("n", 10, "Requests per run")
	initialDelay := flag.Duration("delay", time.Second, "Initial delay between requests")
	minDelay := flag.Duration("min-delay", 10*time.Millisecond, "Minimum delay between requests")
	interval := flag.Uint("interval", 10, "Sample interval byte sent with each request (1-255 s)")
	sim := flag.Bool("sim", false, "Use a simulated radio that drops some replies")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	if *towerID < 0 || *towerID >= watertower.MaxQuantity {
		fmt.Fprintf(os.Stderr, "Error: tower must be 0-%d\n", watertower.MaxQuantity-1)
		os.Exit(1)
	}
	if *interval < 1 || *interval > 255 || *count < 1 {
		fmt.Fprintln(os.Stderr, "Error: need -n >= 1 and -interval in 1-255")
		os.Exit(1)
	}

	configuration, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *sim {
		configuration.Bus = config.BusConfig{Kind: config.BusSim}
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
	if handle.Sim != nil {
		handle.Sim.RSSIValue = 110
		handle.Sim.Responder = lossyTower(0.1)
	}

	radio, err := handle.NewRadio(configuration, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer radio.Close()
	if err := radio.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to initialize radio on %s: %v\n", handle.Name, err)
		os.Exit(1)
	}

	id := watertower.Identity(*towerID)
	fmt.Printf("Soak testing %s on %s\n\n", id, handle.Name)

	var results []runResult
	for delay := *initialDelay; delay >= *minDelay; delay /= 2 {
		fmt.Printf("========================================\n")
		fmt.Printf("TEST RUN: %d requests, %v delay\n", *count, delay)
		fmt.Printf("========================================\n")

		r := runTest(radio, id, byte(*interval), *count, delay, *verbose)
		results = append(results, r)

		fmt.Printf("\nResult: %d/%d replies (%.1f%% success), %d invalid, %d failed\n",
			r.Received, r.Sent, r.SuccessRate, r.Invalid, r.Failed)
		if r.Received > 0 {
			fmt.Printf("        RSSI: avg=%.1f dBm, latency avg=%v\n", r.AvgDBm, r.AvgLatency)
		}
		fmt.Println()

		if r.SuccessRate < 50.0 {
			fmt.Println("Success rate below 50%, stopping tests.")
			break
		}
	}

	fmt.Println("========================================")
	fmt.Println("SUMMARY")
	fmt.Println("========================================")
	fmt.Printf("%-15s %-8s %-8s %-10s %-10s %-12s\n", "Delay", "Sent", "Recv", "Success%", "Avg dBm", "Latency")
	fmt.Println("------------------------------------------------------------------")
	for _, r := range results {
		fmt.Printf("%-15v %-8d %-8d %-10.1f %-10.1f %-12v\n",
			r.Delay, r.Sent, r.Received, r.SuccessRate, r.AvgDBm, r.AvgLatency)
	}

	stats := radio.Stats()
	fmt.Printf("\nRadio: %d sent, %d received, %d CRC errors, %d reply timeouts\n",
		stats.Transmitted, stats.Received, stats.CRCErrors, stats.ReplyTimeouts)
}

func runTest(radio *link.Radio, id link.Identity, interval byte, count int, delay time.Duration, verbose bool) runResult {
	result := runResult{Delay: delay, Sent: count}
	var totalDBm float32
	var totalLatency time.Duration

	for i := 0; i < count; i++ {
		start := time.Now()
		resp, err := radio.Exchange(id, watertower.ProtocolTag, []byte{interval})
		latency := time.Since(start)

		switch {
		case err != nil:
			result.Failed++
			if verbose {
				fmt.Printf("  [%3d] no reply: %v\n", i, err)
			}
		default:
			us, derr := watertower.DecodeEcho(resp.Payload)
			if derr != nil || !watertower.ValidEcho(us) {
				result.Invalid++
				if verbose {
					fmt.Printf("  [%3d] invalid reply % X\n", i, resp.Payload)
				}
				break
			}
			result.Received++
			totalLatency += latency

			var raw uint8
			radio.WithDevice(func(dev *si4432.Device) error {
				raw, err = dev.RSSI()
				return err
			})
			dbm := scanner.RSSIToDBm(float32(raw))
			totalDBm += dbm
			if verbose {
				fmt.Printf("  [%3d] %5d us (%.1f cm) %.1f dBm in %v\n",
					i, us, watertower.DistanceCM(us), dbm, latency.Round(time.Millisecond))
			}
		}

		if i < count-1 {
			time.Sleep(delay)
		}
	}

	result.SuccessRate = float64(result.Received) / float64(result.Sent) * 100.0
	if result.Received > 0 {
		result.AvgDBm = totalDBm / float32(result.Received)
		result.AvgLatency = totalLatency / time.Duration(result.Received)
	}
	return result
}

// lossyTower answers with a fixed 100 cm echo and drops a fraction of
// the requests
func lossyTower(loss float64) simradio.Responder {
	reply := simradio.EchoResponder(func(uint8) (uint32, bool) {
		return watertower.EchoMicros(100), true
	})
	return func(packet []byte) []byte {
		if rand.Float64() < loss {
			return nil
		}
		return reply(packet)
	}
}
