// Package logger backs helix.Logger with zerolog for the CLI.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/rs/zerolog"
)

var _ helix.Logger = (*Adapter)(nil)

// New creates a logger for the HELIX_ENV environment. Development (the
// default) writes colored console lines, anything else writes JSON.
func New(verbose bool) zerolog.Logger {
	env := strings.ToLower(os.Getenv("HELIX_ENV"))

	var log zerolog.Logger
	if env == "" || env == "dev" || env == "development" {
		log = NewDevelopment(os.Stderr)
	} else {
		log = NewProduction(os.Stderr)
	}

	if verbose {
		return log.Level(zerolog.DebugLevel)
	}

	return log.Level(zerolog.WarnLevel)
}

// NewDevelopment creates a console logger.
func NewDevelopment(out io.Writer) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

// NewProduction creates a JSON logger with UNIX timestamps.
func NewProduction(out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	return zerolog.New(out).With().Timestamp().Logger()
}

// Adapter exposes a zerolog.Logger as a helix.Logger.
type Adapter struct {
	log zerolog.Logger
}

// NewAdapter wraps log.
func NewAdapter(log zerolog.Logger) *Adapter {
	return &Adapter{log: log}
}

// Debug implements helix.Logger.
func (a *Adapter) Debug(msg string, fields map[string]interface{}) {
	a.log.Debug().Fields(fields).Msg(msg)
}

// Info implements helix.Logger.
func (a *Adapter) Info(msg string, fields map[string]interface{}) {
	a.log.Info().Fields(fields).Msg(msg)
}

// Warn implements helix.Logger.
func (a *Adapter) Warn(msg string, fields map[string]interface{}) {
	a.log.Warn().Fields(fields).Msg(msg)
}

// Error implements helix.Logger.
func (a *Adapter) Error(msg string, fields map[string]interface{}) {
	a.log.Error().Fields(fields).Msg(msg)
}
