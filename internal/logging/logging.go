package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Configure builds a zerolog logger from config values. A non-empty file
// path adds a plain JSON file sink alongside stdout; failure to open it is
// reported on the returned logger rather than aborting startup.
func Configure(level, format, file string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer = os.Stdout
	if strings.EqualFold(format, "console") {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	var openErr error
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			openErr = err
		} else {
			output = zerolog.MultiLevelWriter(output, f)
		}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	log := zerolog.New(output).Level(lvl).With().Timestamp().Logger()
	if openErr != nil {
		log.Warn().Err(openErr).Str("file", file).Msg("log file not writable, logging to stdout only")
	}
	return log
}
