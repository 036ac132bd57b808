// Package redisstream publishes monitoring events to a capped Redis stream.
package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/vettly/match-explainer/internal/adapter/monitor"
)

// Publisher appends events with XADD. The stream is trimmed approximately to
// maxLen entries on every write.
type Publisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

var _ monitor.Publisher = (*Publisher)(nil)

// New wraps an existing client.
func New(rdb *redis.Client, stream string, maxLen int64) *Publisher {
	return &Publisher{rdb: rdb, stream: stream, maxLen: maxLen}
}

// Connect parses url, dials Redis and verifies it with PING.
func Connect(ctx context.Context, url, stream string, maxLen int64) (*Publisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=redisstream.Connect: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("op=redisstream.Connect: ping: %w", err)
	}
	slog.Info("redis monitoring stream ready",
		slog.String("addr", opts.Addr),
		slog.String("stream", stream),
		slog.Int64("max_len", maxLen))
	return New(rdb, stream, maxLen), nil
}

// Name implements monitor.Publisher.
func (p *Publisher) Name() string { return "redis" }

// Publish implements monitor.Publisher.
func (p *Publisher) Publish(ctx context.Context, ev monitor.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("op=redisstream.Publish: marshal: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"type":     ev.Type,
			"event_id": ev.ID(),
			"match_id": ev.MatchID(),
			"payload":  string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("op=redisstream.Publish: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable. Used by /readyz.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Close implements monitor.Publisher.
func (p *Publisher) Close() error { return p.rdb.Close() }
