// Package observability wires up structured logging and the admin HTTP
// surface (/health, /metrics) that a passive capture pipeline needs to
// expose.
package observability

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the console logger used for process lifecycle and
// per-key diagnostics, honoring a LOG_LEVEL env knob.
func NewLogger() zerolog.Logger {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		log = log.Level(zerolog.DebugLevel)
	case "warn":
		log = log.Level(zerolog.WarnLevel)
	case "error":
		log = log.Level(zerolog.ErrorLevel)
	default:
		log = log.Level(zerolog.InfoLevel)
	}
	return log
}
