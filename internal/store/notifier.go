package store

import (
	"context"
	"sync"
)

// Listener signals that something on its channels changed. Signals carry
// no payload and coalesce: several changes may arrive as one signal.
type Listener interface {
	C() <-chan struct{}
	Close() error
}

// Notifier fans change signals out to listeners, possibly across processes.
type Notifier interface {
	Publish(ctx context.Context, channels ...string) error
	Listen(ctx context.Context, channels ...string) (Listener, error)
}

func documentChannel(path string) string {
	return "bingo:doc:" + path
}

func collectionChannel(collection string) string {
	return "bingo:col:" + collection
}

// MemoryNotifier delivers signals within one process.
type MemoryNotifier struct {
	mu        sync.Mutex
	listeners map[string]map[*memoryListener]struct{}
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{
		listeners: make(map[string]map[*memoryListener]struct{}),
	}
}

func (n *MemoryNotifier) Publish(ctx context.Context, channels ...string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, channel := range channels {
		for l := range n.listeners[channel] {
			l.signal()
		}
	}
	return nil
}

func (n *MemoryNotifier) Listen(ctx context.Context, channels ...string) (Listener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	l := &memoryListener{
		notifier: n,
		channels: channels,
		ch:       make(chan struct{}, 1),
	}
	for _, channel := range channels {
		if n.listeners[channel] == nil {
			n.listeners[channel] = make(map[*memoryListener]struct{})
		}
		n.listeners[channel][l] = struct{}{}
	}
	return l, nil
}

// listenerCount reports registered listeners on channel.
func (n *MemoryNotifier) listenerCount(channel string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners[channel])
}

type memoryListener struct {
	notifier *MemoryNotifier
	channels []string
	ch       chan struct{}
	once     sync.Once
}

func (l *memoryListener) C() <-chan struct{} {
	return l.ch
}

func (l *memoryListener) signal() {
	select {
	case l.ch <- struct{}{}:
	default:
	}
}

func (l *memoryListener) Close() error {
	l.once.Do(func() {
		n := l.notifier
		n.mu.Lock()
		defer n.mu.Unlock()
		for _, channel := range l.channels {
			delete(n.listeners[channel], l)
			if len(n.listeners[channel]) == 0 {
				delete(n.listeners, channel)
			}
		}
	})
	return nil
}
