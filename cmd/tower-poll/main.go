// tower-poll: Poll the water tower sensors and log levels and alarms
//
// This tool opens the radio named by the configuration file, polls every
// enabled tower at the sample interval and logs each reading. High water
// alarms and lost towers are logged as warnings.
//
// Examples:
//
//	# Run the station
//	./tower-poll -c etc/watertower/station.json
//
//	# Dry run against a simulated radio with simulated sensors
//	./tower-poll -c etc/watertower/station.json -sim
//
//	# Mirror tower state into Redis: add to the configuration
//	#   "redis": {"addr": "localhost:6379"}
//
//	# Write a starting configuration
//	./tower-poll -init etc/watertower/station.json
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/herlein/watertower/pkg/bus"
	"github.com/herlein/watertower/pkg/config"
	"github.com/herlein/watertower/pkg/publish"
	"github.com/herlein/watertower/pkg/simradio"
	"github.com/herlein/watertower/pkg/watertower"
)

func main() {
	configPath := flag.String("c", config.GetConfigPath("station"), "Configuration file path")
	initPath := flag.String("init", "", "Write a default configuration to this path and exit")
	sim := flag.Bool("sim", false, "Use a simulated radio and sensors")
	interval := flag.Duration("interval", 0, "Override the sample interval (1s..255s)")
	flag.Parse()

	if *initPath != "" {
		if err := config.SaveToFile(config.Default(), *initPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to write configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to: %s\n", *initPath)
		return
	}

	configuration, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *sim {
		configuration.Bus = config.BusConfig{Kind: config.BusSim}
	}

	log, err := config.NewLogger(configuration.Log, os.Stdout)
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
		handle.Sim.Responder = simulatedSensors(configuration.Towers)
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

	listeners := watertower.Listeners{watertower.LogListener{Log: log}}
	if po, ok := configuration.ToPublishOptions(); ok {
		po.Logger = log
		pub := publish.NewRedis(po)
		defer pub.Close()
		if err := pub.Ping(context.Background()); err != nil {
			log.WithError(err).Warn("redis unavailable, publishing anyway")
		}
		listeners = append(listeners, pub)
	}

	opts := configuration.ToTowerOptions()
	opts.Logger = log
	opts.Listener = listeners
	station, err := watertower.NewStation(radio, configuration.Towers, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *interval > 0 {
		if err := station.SetSampleInterval(*interval); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"bus":    handle.Name,
		"towers": len(station.Towers()),
	}).Info("polling (Ctrl+C to stop)")

	start := time.Now()
	station.Run(ctx)

	stats := radio.Stats()
	fmt.Printf("\nPolled for %v: %d sent, %d received, %d CRC errors, %d reply timeouts\n",
		time.Since(start).Round(time.Second), stats.Transmitted, stats.Received,
		stats.CRCErrors, stats.ReplyTimeouts)
}

// simulatedSensors answers for every enabled tower with a slowly varying
// echo time around half the tank height.
func simulatedSensors(towers []watertower.Config) simradio.Responder {
	distance := make(map[uint8]float64)
	for _, t := range towers {
		if t.Enabled {
			h := t.HeightCM
			if h == 0 {
				h = watertower.DefaultHeightCM
			}
			distance[uint8(watertower.Identity(t.ID))] = float64(h) / 2
		}
	}
	return simradio.EchoResponder(func(identity uint8) (uint32, bool) {
		d, ok := distance[identity]
		if !ok {
			return 0, false
		}
		d += rand.Float64()*4 - 2
		if d < 1 {
			d = 1
		}
		distance[identity] = d
		return watertower.EchoMicros(d), true
	})
}
