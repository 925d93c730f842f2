// Copyright 2024-2026 Aiku AI

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/unjoinable/whisperwire/pkg/config"
)

const (
	logFileMaxSizeMB  = 100
	logFileMaxBackups = 10
)

// newLogger builds the process logger. Console output is pretty or JSON; a
// configured file always receives JSON and is rotated by size.
func newLogger(cfg config.LoggingConfig) (zerolog.Logger, func(), error) {
	return newLoggerTo(os.Stderr, cfg)
}

func newLoggerTo(console io.Writer, cfg config.LoggingConfig) (zerolog.Logger, func(), error) {
	level := zerolog.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("invalid logging.level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	}
	writers := []io.Writer{console}
	closeFn := func() {}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    logFileMaxSizeMB,
			MaxBackups: logFileMaxBackups,
		}
		writers = append(writers, file)
		closeFn = func() { _ = file.Close() }
	}

	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().
		Logger()
	return log, closeFn, nil
}
