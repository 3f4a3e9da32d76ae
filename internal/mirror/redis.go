// Package mirror copies import status snapshots to Redis so processes other
// than the one running the import can follow it.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmethakanbesel/stockdash/internal/job"
	"github.com/redis/go-redis/v9"
)

const retryDelay = 2 * time.Second

// Streamer is the subset of job.Publisher the mirror consumes.
type Streamer interface {
	Stream(ctx context.Context, emit func(job.Status) error, keepAlive func() error) error
}

// Redis publishes every status change on a channel and keeps the latest
// snapshot under <channel>:latest.
type Redis struct {
	client   *redis.Client
	streamer Streamer
	channel  string
	key      string
}

func NewRedis(client *redis.Client, streamer Streamer, channel string) *Redis {
	return &Redis{
		client:   client,
		streamer: streamer,
		channel:  channel,
		key:      channel + ":latest",
	}
}

// Key is where the latest snapshot is stored.
func (m *Redis) Key() string { return m.key }

// Run mirrors until ctx is cancelled. Redis outages are logged and retried.
func (m *Redis) Run(ctx context.Context) {
	for {
		err := m.streamer.Stream(ctx,
			func(st job.Status) error { return m.publish(ctx, st) },
			func() error { return m.client.Ping(ctx).Err() },
		)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("mirror: stream interrupted", "channel", m.channel, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

func (m *Redis) publish(ctx context.Context, st job.Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, m.key, data, 0)
	pipe.Publish(ctx, m.channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	return nil
}
