// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package logging constructs the loggers used by hive programs.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Environment variables consulted by [Config.FromEnv].
const (
	EnvLogLevel   = "HIVE_LOG_LEVEL"
	EnvLogNoColor = "HIVE_LOG_NOCOLOR"
)

// Config describes the output of a logger.
type Config struct {
	App     string // added to each record as "app", if non-empty
	Level   zerolog.Level
	NoColor bool
}

// FromEnv returns a copy of c with any settings given by the environment
// applied. Unparseable values are ignored.
func (c Config) FromEnv() Config {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		c.Level = lvl
	}
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(EnvLogNoColor))); err == nil {
		c.NoColor = v
	}
	return c
}

// New constructs a console logger writing to w.
func (c Config) New(w io.Writer) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: c.NoColor}
	ctx := zerolog.New(out).Level(c.Level).With().Timestamp()
	if c.App != "" {
		ctx = ctx.Str("app", c.App)
	}
	return ctx.Logger()
}

// ParseLevel parses the name of a log level. It reports false if raw is
// empty or not a recognized name.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "off", "none", "disabled":
		return zerolog.Disabled, true
	}
	return zerolog.InfoLevel, false
}
