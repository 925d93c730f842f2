// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command whisperwire relays chat messages between Mattermost channels and
// Matrix rooms, either through a broadcast bridge or a point-to-point link.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/unjoinable/whisperwire/pkg/config"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before environment overrides")
	printExample := flag.Bool("generate-example-config", false, "print the example config and exit")
	printVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	switch {
	case *printVersion:
		fmt.Printf("whisperwire %s (commit %s, built %s)\n", Tag, Commit, BuildTime)
		return
	case *printExample:
		fmt.Print(config.ExampleConfig)
		return
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(2)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", Tag).Str("mode", cfg.Relay.Mode).Msg("Starting whisperwire")
	for _, w := range cfg.Warnings() {
		log.Warn().Msg(w)
	}
	if err := run(ctx, log, cfg); err != nil {
		log.Error().Err(err).Msg("whisperwire stopped with error")
		closeLog()
		os.Exit(1)
	}
	log.Info().Msg("whisperwire stopped")
}

// loadConfig reads path, or starts from the defaults when it does not exist,
// then applies environment overrides and validates the result.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
