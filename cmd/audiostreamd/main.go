// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command audiostreamd runs one audio stream session behind a control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ManuGH/audiostream/internal/config"
	xglog "github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:], os.Stdout, os.Stderr))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:], os.Stdout, os.Stderr))
		case "sessions":
			os.Exit(runSessionsCLI(os.Args[2:], os.Stdout, os.Stderr))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	duration := flag.Duration("duration", 0, "stop the session after this long (overrides session.duration)")
	direction := flag.String("direction", "", "stream direction: output or input (overrides stream.direction)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = resolveDefaultConfigPath()
	}
	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		xglog.Configure(xglog.Config{Service: "audiostreamd", Version: version.Version})
		logger := xglog.WithComponent("daemon")
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}
	if err := applyFlagOverrides(&cfg, *duration, *direction); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.Log.Level,
		Service: cfg.Log.Service,
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("config_source", source).
		Str("config_path", path).
		Str("direction", cfg.Stream.Direction).
		Str("driver", cfg.Driver.Name).
		Str("format", cfg.Stream.Format().String()).
		Msg("starting audiostreamd")

	holder := config.NewHolder(cfg, loader)
	if err := run(ctx, holder, logger); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon failed")
	}
	logger.Info().Msg("daemon exiting")
}

// applyFlagOverrides lets command-line flags win over file and environment.
func applyFlagOverrides(cfg *config.AppConfig, duration time.Duration, direction string) error {
	if duration < 0 {
		return errors.New("-duration must not be negative")
	}
	if duration > 0 {
		cfg.Session.Duration = duration
	}
	if direction = strings.TrimSpace(direction); direction != "" {
		cfg.Stream.Direction = direction
	}
	return config.Validate(*cfg)
}

// resolveDefaultConfigPath returns $AUDIOSTREAM_CONFIG when it names an
// existing file.
func resolveDefaultConfigPath() string {
	p := strings.TrimSpace(os.Getenv(config.EnvPrefix + "CONFIG"))
	if p == "" {
		return ""
	}
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
