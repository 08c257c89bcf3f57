package logtrace

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global zerolog logger. Output is JSON on
// stderr; set METAHUB_LOG_FORMAT=console for human-readable output and
// METAHUB_LOG_LEVEL to override the default info level.
func InitLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if s := os.Getenv("METAHUB_LOG_LEVEL"); s != "" {
		if l, err := zerolog.ParseLevel(strings.ToLower(s)); err == nil {
			level = l
		}
	}

	var w io.Writer = os.Stderr
	if os.Getenv("METAHUB_LOG_FORMAT") == "console" {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	log.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
}
