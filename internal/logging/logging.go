/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, os.Stdout)
}

// SetupWithWriter configures zerolog to write to out. Production environments
// emit JSON lines; everything else uses the console writer. Every capture
// writer receives the raw JSON line regardless of environment.
func SetupWithWriter(environment string, out io.Writer, capture ...io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if environment == "development" {
		level = zerolog.DebugLevel
	}
	if override := strings.TrimSpace(os.Getenv("GRIMNIR_LOG_LEVEL")); override != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(override)); err == nil {
			level = parsed
		}
	}

	writer := out
	if !strings.EqualFold(environment, "production") {
		writer = zerolog.ConsoleWriter{Out: out, NoColor: out != os.Stdout}
	}
	if len(capture) > 0 {
		writer = zerolog.MultiLevelWriter(append([]io.Writer{writer}, capture...)...)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}

// Component derives a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
