package redisbus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/arena-hub/arena-hub/internal/domain/event"
)

// channelPrefix namespaces bus subjects so unrelated redis traffic is
// never mistaken for channel events.
const channelPrefix = "ws:"

// Bus bridges channel events across server processes over redis pub/sub.
// The bus provides no global ordering; receivers rely on per-instance
// sequence numbers for staleness and duplicate detection.
type Bus struct {
	client  *redis.Client
	retries int
	backoff time.Duration
	logger  zerolog.Logger
}

// New creates a bus from a redis URL.
func New(url string, retries int, backoff time.Duration, logger zerolog.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Bus{
		client:  redis.NewClient(opts),
		retries: retries,
		backoff: backoff,
		logger:  logger.With().Str("service", "redisbus").Logger(),
	}, nil
}

// Publish sends one encoded envelope to a channel subject, retrying
// transient failures with backoff. Callers treat failure as degraded
// cross-process reach, never as a local delivery problem.
func (b *Bus) Publish(ctx context.Context, channelID string, data []byte) error {
	subject := channelPrefix + channelID
	var err error
	for attempt := 0; attempt <= b.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.backoff * time.Duration(attempt)):
			}
		}
		if err = b.client.Publish(ctx, subject, data).Err(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("bus publish %s: %w", channelID, err)
}

// Run subscribes to all channel subjects and feeds decoded envelopes to
// ingest until ctx is done. Events published by this process come back on
// the subscription too; the ingest path's sequence dedupe discards them.
func (b *Bus) Run(ctx context.Context, ingest func(*event.Envelope)) {
	pubsub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			env, err := event.Decode([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn().Err(err).Str("subject", msg.Channel).Msg("undecodable bus message")
				continue
			}
			if env.Channel == "" {
				env.Channel = strings.TrimPrefix(msg.Channel, channelPrefix)
			}
			ingest(env)
		}
	}
}

// Ping verifies connectivity, used by the health endpoint.
func (b *Bus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the redis client.
func (b *Bus) Close() error {
	return b.client.Close()
}
