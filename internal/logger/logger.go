// internal/logger/logger.go
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the global logger.
type Options struct {
	Level      string
	File       string // optional rolling log file
	Production bool
}

// Init configures the global zerolog logger and returns a closer for the log file, if any.
func Init(opts Options) io.Closer {
	var console io.Writer
	if opts.Production {
		console = os.Stderr
	} else {
		// Use ConsoleWriter for human-readable, colorized output in development
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	out := console
	if opts.File != "" {
		rolling := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(console, rolling)
		closer = rolling
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Add a hook to include the caller's file and line number
	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()

	if err != nil && opts.Level != "" {
		log.Warn().Str("level", opts.Level).Msg("Unknown log level, falling back to info")
	}
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
