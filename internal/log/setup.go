// Package log configures the process-wide zerolog logger and reports
// pipeline progress through it.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// Format selects the log encoding
type Format string

const (
	FormatAuto    Format = "auto"
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Config is the logging section of the run config
type Config struct {
	Level  string `yaml:"level" json:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format Format `yaml:"format" json:"format" default:"auto" validate:"oneof=auto console json"`
}

// Setup installs the global logger writing to stderr. Auto format uses the
// console writer only when stderr is a terminal.
func Setup(cfg Config) error {
	return SetupWriter(cfg, os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
}

// SetupWriter is Setup with an explicit writer and TTY flag
func SetupWriter(cfg Config, out io.Writer, tty bool) error {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return fmt.Errorf("failed to parse log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	switch cfg.Format {
	case FormatJSON:
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	case FormatConsole:
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	case FormatAuto, "":
		if tty {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
		} else {
			log.Logger = zerolog.New(out).With().Timestamp().Logger()
		}
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return nil
}
