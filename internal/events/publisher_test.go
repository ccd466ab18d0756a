package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/audiostream/internal/stream"
	"github.com/ManuGH/audiostream/internal/stream/model"
)

func setupMiniRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	return mr
}

func TestPublisher_DeliversEvents(t *testing.T) {
	mr := setupMiniRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := NewPublisher(ctx, Config{Addr: mr.Addr(), Channel: "audiostream:events"})
	require.NoError(t, err)
	defer p.Close()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(ctx, "audiostream:events")
	defer ps.Close()
	_, err = ps.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = p.Run(ctx)
	}()

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	p.Observe(stream.Event{
		StreamID:  "s-1",
		Direction: model.DirectionOutput,
		From:      model.StateIdle,
		To:        model.StateActive,
		Cause:     string(model.CmdBurst),
		At:        at,
	})

	recvCtx, recvCancel := context.WithTimeout(ctx, 2*time.Second)
	defer recvCancel()
	msg, err := ps.ReceiveMessage(recvCtx)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, "s-1", got["stream_id"])
	assert.Equal(t, "output", got["direction"])
	assert.Equal(t, "IDLE", got["from"])
	assert.Equal(t, "ACTIVE", got["to"])
	assert.Equal(t, "burst", got["cause"])

	cancel()
	wg.Wait()
	sent, dropped := p.Stats()
	assert.Equal(t, int64(1), sent)
	assert.Zero(t, dropped)
}

func TestPublisher_DropsWhenBufferFull(t *testing.T) {
	mr := setupMiniRedis(t)
	p := newPublisher(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "c")
	defer p.Close()

	for i := 0; i < defaultBuffer+10; i++ {
		p.Observe(stream.Event{StreamID: "s"})
	}
	_, dropped := p.Stats()
	assert.Equal(t, int64(10), dropped)
}

func TestPublisher_FlushesOnShutdown(t *testing.T) {
	mr := setupMiniRedis(t)
	p := newPublisher(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "c")
	defer p.Close()

	for i := 0; i < 5; i++ {
		p.Observe(stream.Event{StreamID: "s"})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	sent, _ := p.Stats()
	assert.Equal(t, int64(5), sent)
}

func TestNewPublisher_ConnectionFailure(t *testing.T) {
	mr := setupMiniRedis(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewPublisher(context.Background(), Config{Addr: addr, Channel: "c"})
	assert.Error(t, err)
}
