package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisRelay spreads events across server instances over Redis Pub/Sub.
// Every instance runs the relay; events published anywhere reach every local
// Broadcaster through the shared channel.
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   *Broadcaster
	logger  zerolog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

func NewRedisRelay(client *redis.Client, channel string, local *Broadcaster, logger zerolog.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		local:   local,
		logger:  logger.With().Str("component", "redis_relay").Str("channel", channel).Logger(),
		ready:   make(chan struct{}),
	}
}

// Publish sends ev to the shared channel. When Redis is unavailable the event
// is still delivered to local observers.
func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("redis publish failed, delivering locally")
		return r.local.Publish(ctx, ev)
	}
	return nil
}

// Ready is closed once the subscription is confirmed by Redis.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

// Run relays messages from the channel into the local Broadcaster until ctx
// is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.logger.Info().Msg("relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Error().Err(err).Msg("discarding malformed event")
				continue
			}
			_ = r.local.Publish(ctx, ev)
		}
	}
}

// Serve keeps the relay subscribed until ctx is cancelled, resubscribing
// after retry whenever Redis drops or refuses the subscription.
func (r *RedisRelay) Serve(ctx context.Context, retry time.Duration) {
	for {
		err := r.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.logger.Warn().Err(err).Dur("retry", retry).Msg("relay subscription lost")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}
