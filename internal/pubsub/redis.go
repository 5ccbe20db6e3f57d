package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBroker shares deliveries between relay instances over Redis Pub/Sub.
type RedisBroker struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

func NewRedisBroker(ctx context.Context, redisURL string, logger zerolog.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisBroker{client: client, channel: Topic, logger: logger}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, d Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, handler Handler) error {
	ps := b.client.Subscribe(ctx, b.channel)

	// wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					b.logger.Debug().Msg("redis subscription closed")
					return
				}
				var d Delivery
				if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
					b.logger.Error().Err(err).Msg("dropping undecodable delivery")
					continue
				}
				if err := handler(ctx, d); err != nil {
					b.logger.Error().Err(err).Msg("delivery handler failed")
				}
			}
		}
	}()

	return nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
