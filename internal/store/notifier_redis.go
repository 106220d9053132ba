package store

import (
	"context"
	"fmt"
	"sync"
)

// RedisNotifier carries change signals between server processes over redis
// pub/sub, so a write on one instance reaches subscribers on all of them.
type RedisNotifier struct {
	client PubSubClient
}

func NewRedisNotifier(client PubSubClient) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, channels ...string) error {
	for _, channel := range channels {
		if err := n.client.Publish(ctx, channel, "1"); err != nil {
			return fmt.Errorf("publishing %s: %w", channel, err)
		}
	}
	return nil
}

func (n *RedisNotifier) Listen(ctx context.Context, channels ...string) (Listener, error) {
	ps, err := n.client.Subscribe(ctx, channels...)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %v: %w", channels, err)
	}

	l := &redisListener{
		ps:   ps,
		ch:   make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l, nil
}

type redisListener struct {
	ps   PubSub
	ch   chan struct{}
	done chan struct{}
	once sync.Once
}

func (l *redisListener) run() {
	defer close(l.ch)
	msgs := l.ps.Channel()
	for {
		select {
		case <-l.done:
			return
		case _, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case l.ch <- struct{}{}:
			default:
			}
		}
	}
}

func (l *redisListener) C() <-chan struct{} {
	return l.ch
}

func (l *redisListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.ps.Close()
	})
	return err
}
