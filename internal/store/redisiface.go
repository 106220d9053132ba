package store

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// PubSubClient narrows the redis operations the notifier uses.
type PubSubClient interface {
	Publish(ctx context.Context, channel string, message any) error
	Subscribe(ctx context.Context, channels ...string) (PubSub, error)
}

// PubSub is an established redis subscription.
type PubSub interface {
	Channel() <-chan *redis.Message
	Close() error
}

// RedisAdapter wraps *redis.Client to satisfy PubSubClient.
type RedisAdapter struct {
	client *redis.Client
}

// NewRedisAdapter builds a PubSubClient adapter around a redis client.
func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Publish(ctx context.Context, channel string, message any) error {
	return r.client.Publish(ctx, channel, message).Err()
}

// Subscribe waits for the server to confirm the subscription so that no
// message published after it returns is missed.
func (r *RedisAdapter) Subscribe(ctx context.Context, channels ...string) (PubSub, error) {
	ps := r.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return pubSubAdapter{ps: ps}, nil
}

type pubSubAdapter struct {
	ps *redis.PubSub
}

func (p pubSubAdapter) Channel() <-chan *redis.Message {
	return p.ps.Channel()
}

func (p pubSubAdapter) Close() error {
	return p.ps.Close()
}
