package config

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, level string, burst int) {
	t.Helper()
	data := []byte("log:\n  level: " + level + "\nsession:\n  burstFrames: " + strconv.Itoa(burst) + "\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestHolder_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "info", 480)

	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	writeConfig(t, path, "debug", 240)
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, "debug", h.Get().Log.Level)
	got := <-ch
	assert.Equal(t, 240, got.Session.BurstFrames)
}

func TestHolder_ReloadKeepsOldConfigOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "info", 480)

	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	writeConfig(t, path, "shouting", 480)
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, "info", h.Get().Log.Level)
}

func TestHolder_FullListenerIsSkipped(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader("", "test"))
	ch := make(chan AppConfig)
	h.RegisterListener(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, h.Reload(context.Background()))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reload blocked on an unbuffered listener")
	}
}

func TestHolder_WatchWithoutFileReturns(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader("", "test"))
	assert.NoError(t, h.Watch(context.Background()))
}

func TestHolder_WatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "info", 480)

	loader := NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)
	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.Watch(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	// Rewrite until the watcher is registered. The interval outlasts the
	// debounce so each write can complete a reload.
	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(2 * reloadDebounce)
	defer tick.Stop()
	for {
		select {
		case got := <-ch:
			assert.Equal(t, "warn", got.Log.Level)
			return
		case <-tick.C:
			writeConfig(t, path, "warn", 480)
		case <-deadline:
			t.Fatal("config change was not picked up")
		}
	}
}
