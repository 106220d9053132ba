package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HammerMeetNail/livebingo/internal/logging"
)

// Backend persists documents. Timestamps are resolved by the Gateway
// before they reach a backend.
type Backend interface {
	Create(ctx context.Context, path, collection string, data []byte, now time.Time) error
	Get(ctx context.Context, path string) (*Document, error)
	Merge(ctx context.Context, path, collection string, data []byte, now time.Time) error
	Increment(ctx context.Context, path, field string, delta int64, now time.Time) error
	Query(ctx context.Context, q Query) ([]Document, error)
}

// Gateway implements Store on top of a Backend and a Notifier.
type Gateway struct {
	backend  Backend
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time
}

func NewGateway(backend Backend, notifier Notifier, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.Default
	}
	return &Gateway{
		backend:  backend,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*Gateway)(nil)

func (g *Gateway) CreateDocument(ctx context.Context, path string, fields Fields) error {
	collection, err := CollectionOf(path)
	if err != nil {
		return err
	}
	now := g.now()
	data, err := resolveFields(fields, now)
	if err != nil {
		return err
	}
	if err := g.backend.Create(ctx, path, collection, data, now); err != nil {
		return err
	}
	g.publish(ctx, path, collection)
	return nil
}

func (g *Gateway) ReadDocument(ctx context.Context, path string) (*Document, error) {
	if _, err := CollectionOf(path); err != nil {
		return nil, err
	}
	return g.backend.Get(ctx, path)
}

func (g *Gateway) MergeDocument(ctx context.Context, path string, fields Fields) error {
	collection, err := CollectionOf(path)
	if err != nil {
		return err
	}
	now := g.now()
	data, err := resolveFields(fields, now)
	if err != nil {
		return err
	}
	if err := g.backend.Merge(ctx, path, collection, data, now); err != nil {
		return err
	}
	g.publish(ctx, path, collection)
	return nil
}

func (g *Gateway) IncrementField(ctx context.Context, path, field string, delta int64) error {
	collection, err := CollectionOf(path)
	if err != nil {
		return err
	}
	if err := validateField(field); err != nil {
		return err
	}
	if err := g.backend.Increment(ctx, path, field, delta, g.now()); err != nil {
		return err
	}
	g.publish(ctx, path, collection)
	return nil
}

func (g *Gateway) QueryDocuments(ctx context.Context, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	return g.backend.Query(ctx, q)
}

// SubscribeDocument pushes the document's current state, then a fresh
// snapshot after every change, until ctx ends or the subscription is closed.
func (g *Gateway) SubscribeDocument(ctx context.Context, path string) (*Subscription[DocumentSnapshot], error) {
	if _, err := CollectionOf(path); err != nil {
		return nil, err
	}

	read := func(ctx context.Context) (DocumentSnapshot, error) {
		doc, err := g.backend.Get(ctx, path)
		if errors.Is(err, ErrNotFound) {
			return DocumentSnapshot{Path: path}, nil
		}
		if err != nil {
			return DocumentSnapshot{}, err
		}
		return DocumentSnapshot{Path: path, Document: doc}, nil
	}

	// Listen before the first read so a change in between is not lost.
	listener, err := g.notifier.Listen(ctx, documentChannel(path))
	if err != nil {
		return nil, fmt.Errorf("listening for %s: %w", path, err)
	}
	initial, err := read(ctx)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	return watch(ctx, listener, initial, read), nil
}

// SubscribeQuery is SubscribeDocument for a query over one collection.
func (g *Gateway) SubscribeQuery(ctx context.Context, q Query) (*Subscription[QuerySnapshot], error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	read := func(ctx context.Context) (QuerySnapshot, error) {
		docs, err := g.backend.Query(ctx, q)
		if err != nil {
			return QuerySnapshot{}, err
		}
		return QuerySnapshot{Collection: q.Collection, Documents: docs}, nil
	}

	listener, err := g.notifier.Listen(ctx, collectionChannel(q.Collection))
	if err != nil {
		return nil, fmt.Errorf("listening for %s: %w", q.Collection, err)
	}
	initial, err := read(ctx)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	return watch(ctx, listener, initial, read), nil
}

// publish never fails the write it follows; subscribers catch up on the
// next change.
func (g *Gateway) publish(ctx context.Context, path, collection string) {
	if err := g.notifier.Publish(ctx, documentChannel(path), collectionChannel(collection)); err != nil {
		g.logger.Warn("Change notification failed", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
}
