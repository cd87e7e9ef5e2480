// channel-scan: Survey the Si4432 hopping channels and report the quietest
//
// Each cycle tunes the radio to every channel in turn, samples the RSSI
// register for the dwell time and prints one line per cycle. At exit the
// channel with the lowest average level over all cycles is reported and,
// with -save, written back to the configuration file.
//
// Examples:
//
//	# One survey of channels 0..7
//	./channel-scan -c etc/watertower/station.json -once
//
//	# Survey channels 0..31 for a minute, logging every cycle to CSV
//	./channel-scan -c etc/watertower/station.json -last 31 -duration 1m -csv survey.csv
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/herlein/watertower/pkg/bus"
	"github.com/herlein/watertower/pkg/config"
	"github.com/herlein/watertower/pkg/scanner"
)

var (
	configPath = flag.String("c", config.GetConfigPath("station"), "Configuration file path")
	sim        = flag.Bool("sim", false, "Use a simulated radio with random channel levels")
	first      = flag.Uint("first", 0, "First channel")
	last       = flag.Uint("last", scanner.DefaultChannelCount-1, "Last channel (0-255)")
	threshold  = flag.Float64("threshold", float64(scanner.DefaultRSSIThreshold), "Busy threshold in dBm")
	dwell      = flag.Duration("dwell", scanner.DefaultDwellTime, "Listening time per channel (1ms-100ms)")
	samples    = flag.Int("samples", scanner.DefaultSamples, "RSSI reads per channel")
	interval   = flag.Duration("interval", scanner.DefaultScanInterval, "Delay between scan cycles")
	duration   = flag.Duration("duration", 0, "Scan duration (0 = until Ctrl+C)")
	once       = flag.Bool("once", false, "Run a single cycle and exit")
	csvOut     = flag.String("csv", "", "Output CSV file for per-cycle levels")
	save       = flag.Bool("save", false, "Write the quietest channel to the configuration file")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Si4432 hopping channel survey\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if *last > 255 || *first > *last {
		return fmt.Errorf("channels must satisfy first <= last <= 255")
	}

	configuration, err := config.LoadFromFile(*configPath)
	if err != nil {
		return err
	}
	if *sim {
		configuration.Bus = config.BusConfig{Kind: config.BusSim}
	}

	log, err := config.NewLogger(configuration.Log, os.Stderr)
	if err != nil {
		return err
	}

	handle, err := bus.Open(configuration)
	if err != nil {
		return fmt.Errorf("failed to open %s bus: %w", configuration.BusKind(), err)
	}
	defer handle.Close()

	channels := scanner.ChannelRange(uint8(*first), uint8(*last))
	if handle.Sim != nil {
		handle.Sim.ChannelRSSI = make(map[uint8]uint8)
		for _, ch := range channels {
			handle.Sim.ChannelRSSI[ch] = uint8(20 + rand.Intn(120))
		}
	}

	radio, err := handle.NewRadio(configuration, log)
	if err != nil {
		return err
	}
	defer radio.Close()

	cfg := &scanner.ScanConfig{
		Channels:      channels,
		RSSIThreshold: float32(*threshold),
		DwellTime:     *dwell,
		Samples:       *samples,
		ScanInterval:  *interval,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s := scanner.New(radio, cfg, log)

	var csvWriter *bufio.Writer
	if *csvOut != "" {
		f, err := os.Create(*csvOut)
		if err != nil {
			return fmt.Errorf("failed to create CSV file: %w", err)
		}
		defer f.Close()
		csvWriter = bufio.NewWriter(f)
		defer csvWriter.Flush()

		cols := make([]string, len(channels))
		for i, ch := range channels {
			cols[i] = fmt.Sprintf("ch%d", ch)
		}
		fmt.Fprintf(csvWriter, "timestamp_ms,%s\n", strings.Join(cols, ","))
	}

	totals := make(map[uint8]float64)
	cycles := 0
	record := func(r *scanner.ScanResult) {
		cycles++
		for _, c := range r.Readings {
			totals[c.Channel] += float64(c.DBm)
		}
		printResult(cycles, r, cfg.RSSIThreshold)
		if csvWriter != nil {
			levels := make([]string, len(r.Readings))
			for i, c := range r.Readings {
				levels[i] = fmt.Sprintf("%.1f", c.DBm)
			}
			fmt.Fprintf(csvWriter, "%d,%s\n", r.Timestamp.UnixMilli(), strings.Join(levels, ","))
		}
	}

	fmt.Printf("Scanning channels %d-%d on %s\n", *first, *last, handle.Name)
	fmt.Println("\n Cycle | Quietest | Level (dBm) | Busiest | Level (dBm) | Busy")
	fmt.Println("-------+----------+-------------+---------+-------------+------")

	if *once {
		r, err := s.ScanOnce()
		if err != nil {
			return err
		}
		record(r)
	} else {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if *duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, *duration)
			defer cancel()
		}

		results := make(chan *scanner.ScanResult, 4)
		done := make(chan error, 1)
		go func() { done <- s.ScanContinuous(ctx, results) }()
		for r := range results {
			record(r)
		}
		if err := <-done; err != nil && err != context.Canceled && err != context.DeadlineExceeded {
			return err
		}
	}

	if cycles == 0 {
		return fmt.Errorf("no scan completed")
	}

	best, bestLevel := channels[0], totals[channels[0]]
	for _, ch := range channels[1:] {
		if totals[ch] < bestLevel {
			best, bestLevel = ch, totals[ch]
		}
	}
	settings, _ := configuration.ToSettings()
	fmt.Printf("\nQuietest channel over %d cycles: %d (%.3f MHz, %.1f dBm average)\n",
		cycles, best, scanner.ChannelFrequency(settings.FrequencyMHz, best), bestLevel/float64(cycles))

	if *save {
		// reload so -sim does not leak into the file
		stored, err := config.LoadFromFile(*configPath)
		if err != nil {
			return err
		}
		stored.Radio.Channel = best
		if err := config.SaveToFile(stored, *configPath); err != nil {
			return fmt.Errorf("failed to save configuration: %w", err)
		}
		fmt.Printf("Channel saved to: %s\n", *configPath)
	}
	return nil
}

func printResult(cycle int, r *scanner.ScanResult, threshold float32) {
	q, _ := r.Quietest()
	b, _ := r.Busiest()
	fmt.Printf(" %5d | %8d | %11.1f | %7d | %11.1f | %4d\n",
		cycle, q.Channel, q.DBm, b.Channel, b.DBm, len(r.Busy(threshold)))
}
