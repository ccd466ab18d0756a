// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/audiostream/internal/api"
	"github.com/ManuGH/audiostream/internal/config"
	"github.com/ManuGH/audiostream/internal/daemon"
	"github.com/ManuGH/audiostream/internal/discovery"
	"github.com/ManuGH/audiostream/internal/events"
	"github.com/ManuGH/audiostream/internal/health"
	"github.com/ManuGH/audiostream/internal/history"
	xglog "github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/telemetry"
	"github.com/ManuGH/audiostream/internal/version"
)

// run wires the session, the control API and the optional side services, and
// blocks until the session ends or ctx is cancelled.
func run(ctx context.Context, holder *config.Holder, logger zerolog.Logger) error {
	cfg := holder.Get()

	tp, err := telemetry.NewProvider(ctx, cfg.TelemetryConfig())
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	registry := daemon.NewRegistry()
	hub := api.NewHub()
	readiness := health.NewManager(version.Version)
	readiness.RegisterChecker(health.NewStreamChecker(registry.List))
	if cfg.Driver.Name == config.DriverFileSrc {
		readiness.RegisterChecker(health.NewFileChecker("source", cfg.Driver.Path))
	}
	sessionOpts := []daemon.SessionOption{
		daemon.WithRegistry(registry),
		daemon.WithObserver(hub.Observe),
	}
	apiOpts := []api.Option{
		api.WithHub(hub),
		api.WithReadiness(http.HandlerFunc(readiness.ServeReady)),
	}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path, cfg.History.Keep)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("history close failed")
			}
		}()
		sessionOpts = append(sessionOpts, daemon.WithReportStore(store))
		apiOpts = append(apiOpts, api.WithHistory(store))
		readiness.RegisterChecker(health.NewPingChecker("history", store.Ping))
	}

	var pub *events.Publisher
	if cfg.Events.Enabled {
		pub, err = events.NewPublisher(ctx, events.Config{
			Addr:     cfg.Events.RedisAddr,
			Password: cfg.Events.Password,
			DB:       cfg.Events.DB,
			Channel:  cfg.Events.Channel,
		})
		if err != nil {
			// The session still runs; subscribers only miss the feed.
			logger.Warn().
				Err(err).
				Str("event", "events.disabled").
				Str("addr", cfg.Events.RedisAddr).
				Msg("event publisher unavailable, continuing without it")
		} else {
			defer func() { _ = pub.Close() }()
			sessionOpts = append(sessionOpts, daemon.WithObserver(pub.Observe))
			readiness.RegisterChecker(health.NewPingChecker("redis", pub.Ping))
		}
	}

	session, err := daemon.NewSession(cfg, sessionOpts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		// The daemon lives as long as its session.
		defer cancel()
		_, err := session.Run(runCtx)
		return err
	})

	if cfg.HTTP.Enabled {
		handler := api.New(api.Config{
			Version:        version.Version,
			ServiceName:    cfg.Log.Service,
			RateLimit:      cfg.HTTP.RateLimit,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			MetricsEnabled: cfg.Metrics.Enabled,
			MetricsPath:    cfg.Metrics.Path,
			TracingEnabled: cfg.Telemetry.Enabled,
		}, registry, apiOpts...).Handler()

		mgr, err := daemon.NewManager(daemon.Deps{
			Logger:     logger,
			HTTP:       cfg.HTTP,
			APIHandler: handler,
		})
		if err != nil {
			return fmt.Errorf("create manager: %w", err)
		}
		mgr.RegisterShutdownHook("hub", func(context.Context) error {
			hub.Close()
			return nil
		})
		g.Go(func() error { return mgr.Start(runCtx) })

		if cfg.Discovery.Enabled {
			g.Go(func() error {
				advertise(runCtx, mgr, cfg, logger)
				return nil
			})
		}
	}

	if pub != nil {
		g.Go(func() error { return pub.Run(runCtx) })
	}

	g.Go(func() error {
		if err := holder.Watch(runCtx); err != nil {
			logger.Warn().Err(err).Msg("config watcher unavailable, hot reload disabled")
		}
		return nil
	})

	reloads := make(chan config.AppConfig, 1)
	holder.RegisterListener(reloads)
	g.Go(func() error {
		applyReloads(runCtx, reloads, registry, logger)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// applyReloads pushes the settings that may change at runtime into the live
// process: the log level and the stream debug parameters.
func applyReloads(ctx context.Context, reloads <-chan config.AppConfig, registry *daemon.Registry, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-reloads:
			if err := xglog.SetLevel(cfg.Log.Level); err != nil {
				logger.Warn().Err(err).Str("level", cfg.Log.Level).Msg("ignoring invalid log level")
			}
			registry.ApplyDebug(cfg.Stream.Debug.Parameters())
			logger.Info().
				Str("event", "config.applied").
				Int("streams", registry.Len()).
				Msg("applied reloaded configuration")
		}
	}
}

// advertise announces the control API once it is listening. Failures are
// logged; discovery is never fatal.
func advertise(ctx context.Context, mgr daemon.Manager, cfg config.AppConfig, logger zerolog.Logger) {
	select {
	case <-ctx.Done():
		return
	case <-mgr.Ready():
	}
	tcp, ok := mgr.Addr().(*net.TCPAddr)
	if !ok {
		logger.Warn().Msg("mdns: listener has no TCP address")
		return
	}
	adv, err := discovery.NewAdvertiser(discovery.Config{
		Instance: cfg.Discovery.Instance,
		Service:  cfg.Discovery.Service,
		Domain:   cfg.Discovery.Domain,
		Port:     tcp.Port,
		TXT: []string{
			"version=" + version.Version,
			"direction=" + cfg.Stream.Direction,
			"format=" + cfg.Stream.Format().String(),
		},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("mdns: advertiser setup failed")
		return
	}
	if err := adv.Run(ctx); err != nil {
		logger.Warn().Err(err).Msg("mdns: advertiser stopped")
	}
}
