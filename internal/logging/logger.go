// Package logging builds component loggers on rs/zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger tagged with the given component. APP_ENV=dev switches
// to human-readable console output; otherwise lines are JSON.
func New(component string) zerolog.Logger {
	return NewWithWriter(component, os.Stdout)
}

// NewWithWriter is like New but writes to w.
func NewWithWriter(component string, w io.Writer) zerolog.Logger {
	if strings.EqualFold(os.Getenv("APP_ENV"), "dev") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Str("component", component).Logger()
}

// SetLevel sets the global minimum level. An empty level means info.
func SetLevel(level string) error {
	if strings.TrimSpace(level) == "" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
