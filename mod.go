// Package hiero holds the process-wide facilities shared by the history
// proof packages: the logger and the list of prometheus collectors.
package hiero

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance. By default, it only prints
// info level logs and above.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(zerolog.InfoLevel)

// PromCollectors exposes the metrics of the packages. They are registered by
// whoever exposes a prometheus endpoint, for instance the command line.
var PromCollectors []prometheus.Collector

// SetLevel changes the level of the global logger from its textual
// representation, for instance "debug" or "warn".
func SetLevel(text string) error {
	lvl, err := zerolog.ParseLevel(text)
	if err != nil {
		return err
	}

	Logger = Logger.Level(lvl)

	return nil
}
