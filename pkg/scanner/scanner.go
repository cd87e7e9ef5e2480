// Package scanner surveys the signal level on the Si4432 hopping channels
// so a station can pick the quietest one.
package scanner

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/herlein/watertower/pkg/link"
	"github.com/herlein/watertower/pkg/si4432"
)

// Scanner provides channel survey capabilities
type Scanner interface {
	// Lifecycle
	Start() error
	Stop() error
	IsRunning() bool

	// Configuration
	SetConfig(config *ScanConfig) error
	GetConfig() *ScanConfig

	// Scanning
	ScanOnce() (*ScanResult, error)
	ScanContinuous(ctx context.Context, results chan<- *ScanResult) error
}

// scanner implements the Scanner interface
type scanner struct {
	radio *link.Radio
	log   logrus.FieldLogger

	mu       sync.RWMutex
	config   *ScanConfig
	running  bool
	stopChan chan struct{}
}

// New creates a Scanner on radio. A nil config takes DefaultConfig and a
// nil log discards output.
func New(radio *link.Radio, config *ScanConfig, log logrus.FieldLogger) Scanner {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &scanner{
		radio:    radio,
		config:   config,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start marks the scanner running
func (s *scanner) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrScannerRunning
	}
	s.running = true
	s.stopChan = make(chan struct{})
	return nil
}

// Stop stops a running ScanContinuous
func (s *scanner) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrScannerNotRunning
	}
	close(s.stopChan)
	s.running = false
	return nil
}

// IsRunning returns true if the scanner is running
func (s *scanner) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SetConfig updates the scanner configuration
func (s *scanner) SetConfig(config *ScanConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
	return nil
}

// GetConfig returns the current configuration
func (s *scanner) GetConfig() *ScanConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// ScanOnce measures every configured channel once. The radio is held for
// the whole survey and returned to its original channel, in Ready with
// empty FIFOs.
func (s *scanner) ScanOnce() (*ScanResult, error) {
	config := s.GetConfig()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := s.radio.Init(); err != nil {
		return nil, err
	}

	var result *ScanResult
	err := s.radio.WithDevice(func(dev *si4432.Device) (err error) {
		original := dev.Settings().Channel
		defer func() {
			if rerr := s.restore(dev, original); err == nil {
				err = rerr
			}
		}()
		result, err = s.survey(dev, config)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("channel scan failed: %w", err)
	}

	if q, ok := result.Quietest(); ok {
		s.log.WithFields(logrus.Fields{
			"channels": len(result.Readings),
			"quietest": q.Channel,
		}).Debugf("scan complete, quietest at %.1f dBm", q.DBm)
	}
	return result, nil
}

func (s *scanner) survey(dev *si4432.Device, config *ScanConfig) (*ScanResult, error) {
	clock := dev.Options().Clock
	base := dev.Settings().FrequencyMHz
	pause := config.DwellTime / time.Duration(config.Samples)

	result := &ScanResult{Timestamp: clock.Now()}
	for _, ch := range config.Channels {
		if err := dev.SetChannel(ch); err != nil {
			return nil, err
		}
		if err := dev.StartListening(); err != nil {
			return nil, err
		}

		reading := ChannelReading{
			Channel:      ch,
			FrequencyMHz: ChannelFrequency(base, ch),
		}
		var sum int
		for i := 0; i < config.Samples; i++ {
			clock.Sleep(pause)
			v, err := dev.RSSI()
			if err != nil {
				return nil, err
			}
			sum += int(v)
			if v > reading.PeakRSSI {
				reading.PeakRSSI = v
			}
		}
		reading.RSSI = float32(sum) / float32(config.Samples)
		reading.DBm = RSSIToDBm(reading.RSSI)

		s.log.WithField("channel", ch).Tracef("%.3f MHz = %.1f dBm", reading.FrequencyMHz, reading.DBm)
		result.Readings = append(result.Readings, reading)
	}
	return result, nil
}

func (s *scanner) restore(dev *si4432.Device, channel uint8) error {
	if err := dev.SwitchMode(si4432.ModeReady); err != nil {
		return err
	}
	if err := dev.ClearFIFOs(); err != nil {
		return err
	}
	return dev.SetChannel(channel)
}

// ScanContinuous scans every ScanInterval until ctx is cancelled or Stop
// is called. results is closed on return; a result is dropped when the
// receiver is not ready for it.
func (s *scanner) ScanContinuous(ctx context.Context, results chan<- *ScanResult) error {
	if err := s.Start(); err != nil {
		return err
	}
	defer s.Stop()

	s.mu.RLock()
	stop := s.stopChan
	interval := s.config.ScanInterval
	s.mu.RUnlock()
	if interval <= 0 {
		interval = DefaultScanInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(results)
			return ctx.Err()
		case <-stop:
			close(results)
			return nil
		case <-ticker.C:
			result, err := s.ScanOnce()
			if err != nil {
				s.log.WithError(err).Warn("scan cycle failed")
				continue
			}
			select {
			case results <- result:
			default:
			}
		}
	}
}

// ChannelFrequency returns the carrier of channel ch above base
func ChannelFrequency(baseMHz float64, ch uint8) float64 {
	return baseMHz + float64(ch)*si4432.ChannelStepKHz/1000
}
