// Package events fans stream state changes out to Redis subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/audiostream/internal/log"
	"github.com/ManuGH/audiostream/internal/stream"
)

const defaultBuffer = 256

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Publisher forwards stream events to a Redis channel. Observe never blocks
// the worker: events go through a bounded buffer and are dropped when it is
// full.
type Publisher struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger

	queue   chan stream.Event
	dropped atomic.Int64
	sent    atomic.Int64

	closeOnce sync.Once
}

// NewPublisher connects to Redis and checks the connection.
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return newPublisher(client, cfg.Channel), nil
}

func newPublisher(client *redis.Client, channel string) *Publisher {
	p := &Publisher{
		client:  client,
		channel: channel,
		logger:  log.WithComponent("events"),
		queue:   make(chan stream.Event, defaultBuffer),
	}
	p.logger.Info().Str("channel", channel).Msg("publishing stream events to redis")
	return p
}

// Observe is a stream.Observer.
func (p *Publisher) Observe(ev stream.Event) {
	select {
	case p.queue <- ev:
	default:
		if p.dropped.Add(1) == 1 {
			p.logger.Warn().Msg("event buffer full, dropping stream events")
		}
	}
}

// Run publishes buffered events until ctx is done, then flushes what is
// left. Each publish has its own deadline so the flush survives ctx.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-p.queue:
			p.publish(ctx, ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-p.queue:
					p.publish(ctx, ev)
				default:
					return nil
				}
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev stream.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn().Err(err).Msg("encode stream event")
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.client.Publish(pubCtx, p.channel, data).Err(); err != nil {
		p.logger.Warn().Err(err).Str(log.FieldStreamID, ev.StreamID).Msg("redis publish failed")
		return
	}
	p.sent.Add(1)
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Stats returns how many events were published and dropped.
func (p *Publisher) Stats() (sent, dropped int64) {
	return p.sent.Load(), p.dropped.Load()
}

// Close releases the Redis client. Call it after Run has returned.
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() { err = p.client.Close() })
	return err
}
