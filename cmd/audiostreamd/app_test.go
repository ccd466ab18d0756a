package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/audiostream/internal/config"
	"github.com/ManuGH/audiostream/internal/daemon"
	"github.com/ManuGH/audiostream/internal/history"
)

func testAppConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.Driver.Realtime = false
	cfg.Stream.RealtimePriority = 0
	cfg.Session.Duration = 100 * time.Millisecond
	cfg.HTTP.ListenAddr = "127.0.0.1:0"
	cfg.History.Enabled = true
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	return cfg
}

func TestRun_SessionEndsDaemon(t *testing.T) {
	cfg := testAppConfig(t)
	holder := config.NewHolder(cfg, config.NewLoader("", "test"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, run(ctx, holder, zerolog.New(zerolog.NewTestWriter(t))))
	require.NoError(t, ctx.Err(), "run returned because the session ended")

	store, err := history.Open(cfg.History.Path, 0)
	require.NoError(t, err)
	defer store.Close()
	reports, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "output", reports[0].Direction)
	assert.Positive(t, reports[0].Frames)
	assert.True(t, reports[0].Succeeded())
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Session.Duration = 0
	cfg.History.Enabled = false
	holder := config.NewHolder(cfg, config.NewLoader("", "test"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, holder, zerolog.New(zerolog.NewTestWriter(t))) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestApplyReloads(t *testing.T) {
	registry := daemon.NewRegistry()
	reloads := make(chan config.AppConfig, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		applyReloads(ctx, reloads, registry, zerolog.Nop())
		close(done)
	}()

	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	cfg := config.Defaults()
	cfg.Log.Level = "warn"
	reloads <- cfg
	assert.Eventually(t, func() bool { return zerolog.GlobalLevel() == zerolog.WarnLevel },
		time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
