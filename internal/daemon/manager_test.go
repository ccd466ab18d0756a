package daemon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/audiostream/internal/config"
)

func testDeps(h http.Handler) Deps {
	cfg := config.Defaults().HTTP
	cfg.ListenAddr = "127.0.0.1:0"
	return Deps{
		Logger:     zerolog.New(io.Discard),
		HTTP:       cfg,
		APIHandler: h,
	}
}

func TestNewManager_ValidatesDeps(t *testing.T) {
	_, err := NewManager(Deps{Logger: zerolog.Nop(), APIHandler: http.NotFoundHandler()})
	require.ErrorIs(t, err, ErrMissingLogger)

	_, err = NewManager(Deps{Logger: zerolog.New(io.Discard)})
	require.ErrorIs(t, err, ErrMissingAPIHandler)
}

func TestManager_ServesAndRunsHooksInReverse(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	m, err := NewManager(testDeps(h))
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"first", "second"} {
		m.RegisterShutdownHook(name, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	select {
	case <-m.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("manager never became ready")
	}

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + m.Addr().String() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "ok", string(body))

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestManager_HookErrorsAreJoined(t *testing.T) {
	m, err := NewManager(testDeps(http.NotFoundHandler()))
	require.NoError(t, err)
	boom := errors.New("boom")
	m.RegisterShutdownHook("broken", func(context.Context) error { return boom })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	<-m.Ready()
	cancel()

	err = <-done
	require.ErrorIs(t, err, boom)
}

func TestManager_ShutdownBeforeStart(t *testing.T) {
	m, err := NewManager(testDeps(http.NotFoundHandler()))
	require.NoError(t, err)
	assert.Nil(t, m.Addr())
	require.ErrorIs(t, m.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManager_ListenFailure(t *testing.T) {
	deps := testDeps(http.NotFoundHandler())
	deps.HTTP.ListenAddr = "127.0.0.1:99999"
	m, err := NewManager(deps)
	require.NoError(t, err)
	require.Error(t, m.Start(context.Background()))
}
