package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// logger is the process-wide structured logger, configured once in main.
var logger zerolog.Logger

// initLogger builds the console logger at the configured level.
func initLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	var lvl zerolog.Level
	switch strings.ToLower(level) {
	case "trace":
		lvl = zerolog.TraceLevel
	case "debug":
		lvl = zerolog.DebugLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	default:
		lvl = zerolog.InfoLevel
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	logger = zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}
