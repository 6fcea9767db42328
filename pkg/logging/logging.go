// Package logging builds the zerolog loggers used by the service and the CLI.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ssargent/structmsg/pkg/config"
)

// New returns a logger writing to w in the configured format and level
func New(cfg config.Logging, w io.Writer) (zerolog.Logger, error) {
	var out io.Writer
	switch strings.ToLower(cfg.Format) {
	case "", "text", "plain":
		out = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    true,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					return strings.ToUpper(ll)
				}
				return "????"
			},
		}
	case "json":
		out = w
	default:
		return zerolog.Nop(), fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("failed to parse log level: %w", err)
	}

	return zerolog.New(out).Level(logLevel).With().Timestamp().Logger(), nil
}
