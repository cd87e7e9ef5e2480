package config

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Log formats
const (
	LogText = "text"
	LogJSON = "json"
)

// DefaultLogLevel is used when the log section names no level
const DefaultLogLevel = "info"

// LogConfig is the log section of the configuration file
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
}

func parseLevel(level string) (logrus.Level, error) {
	if level == "" {
		level = DefaultLogLevel
	}
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidLog, err)
	}
	return l, nil
}

// NewLogger builds the logger described by c, writing to out (stdout when
// nil).
func NewLogger(c LogConfig, out io.Writer) (*logrus.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stdout
	}

	log := logrus.New()
	switch c.Format {
	case "", LogText:
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	case LogJSON:
		log.Formatter = new(logrus.JSONFormatter)
	default:
		return nil, fmt.Errorf("%w: format %q", ErrInvalidLog, c.Format)
	}
	log.Level = level
	log.Out = out
	return log, nil
}
