package pubsub

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type redisBroker struct {
	client *redis.Client
	log    logrus.FieldLogger
}

func dialRedis(ctx context.Context, rawURL string, opts Options) (*redisBroker, error) {
	ro, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	ro.DialTimeout = opts.ConnectTimeout
	ro.ClientName = opts.ClientID
	client := redis.NewClient(ro)

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &redisBroker{client: client, log: opts.Log.WithField("broker", "redis")}, nil
}

func (b *redisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

func (b *redisBroker) Subscribe(ctx context.Context, topic string, h Handler) error {
	ps := b.client.Subscribe(ctx, topic)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", topic, err)
	}
	b.log.WithField("topic", topic).Info("redis subscribed")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			h(ctx, []byte(msg.Payload))
		}
	}
}

func (b *redisBroker) Close() error {
	return b.client.Close()
}
