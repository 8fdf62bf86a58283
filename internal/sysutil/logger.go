package sysutil

import (
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConfigureLogger sets the global level from lvl, builds a timestamped
// logger writing to w (console format when pretty) and installs it as the
// package-level zerolog logger used by middleware and handlers.
func ConfigureLogger(w io.Writer, lvl string, pretty bool, service string) zerolog.Logger {
	SetLogLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).With().Timestamp().Str("service", service).Logger()
	log.Logger = l
	return l
}
