package store

import (
	"context"
	"errors"
	"sync"
)

// ErrListenerClosed ends a subscription whose notification source went away.
var ErrListenerClosed = errors.New("change listener closed")

// Subscription delivers full snapshots until it is closed, its context is
// cancelled, or the store fails. Delivery is latest-wins: a consumer that
// falls behind skips stale snapshots and only sees the newest one.
type Subscription[T any] struct {
	ch   chan T
	done chan struct{}
	stop func()
	once sync.Once
	mu   sync.Mutex
	err  error
}

func newSubscription[T any](stop func()) *Subscription[T] {
	return &Subscription[T]{
		ch:   make(chan T, 1),
		done: make(chan struct{}),
		stop: stop,
	}
}

// C is closed when the subscription ends; check Err afterwards.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Err reports why the subscription ended. It is nil after Close or
// context cancellation.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the listener and waits for the producer to exit.
// It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(s.stop)
	<-s.done
}

// Done is closed once the producer has exited.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription[T]) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Subscription[T]) finish() {
	close(s.ch)
	close(s.done)
}

// push offers v, replacing an undelivered older snapshot. Only the single
// producer goroutine calls push.
func (s *Subscription[T]) push(ctx context.Context, v T) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		select {
		case s.ch <- v:
			return true
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// watch emits initial, then re-reads on every notification from listener.
func watch[T any](ctx context.Context, listener Listener, initial T, read func(context.Context) (T, error)) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscription[T](cancel)
	sub.push(ctx, initial)

	go func() {
		defer sub.finish()
		defer func() { _ = listener.Close() }()
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-listener.C():
				if !ok {
					if ctx.Err() == nil {
						sub.setErr(ErrListenerClosed)
					}
					return
				}
				v, err := read(ctx)
				if err != nil {
					if ctx.Err() == nil {
						sub.setErr(err)
					}
					return
				}
				if !sub.push(ctx, v) {
					return
				}
			}
		}
	}()

	return sub
}

// Map derives a subscription by converting every snapshot of src. An error
// from fn ends both subscriptions. Closing the result closes src.
func Map[A, B any](src *Subscription[A], fn func(A) (B, error)) *Subscription[B] {
	ctx, cancel := context.WithCancel(context.Background())
	dst := newSubscription[B](func() {
		cancel()
		src.Close()
	})

	go func() {
		defer dst.finish()
		defer cancel()

		for v := range src.C() {
			out, err := fn(v)
			if err != nil {
				dst.setErr(err)
				go src.Close()
				return
			}
			if !dst.push(ctx, out) {
				return
			}
		}
		if err := src.Err(); err != nil {
			dst.setErr(err)
		}
	}()

	return dst
}
