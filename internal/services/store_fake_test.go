package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/HammerMeetNail/livebingo/internal/logging"
	"github.com/HammerMeetNail/livebingo/internal/store"
)

// fakeStore wraps an in-memory gateway, counting writes and injecting errors.
type fakeStore struct {
	store.Store

	mu         sync.Mutex
	creates    int
	merges     int
	increments int

	readErr      error
	writeErr     error
	incrementErr error
	subscribeErr error
}

func newFakeStore() *fakeStore {
	logger := logging.New().SetLevel(logging.LevelError)
	return &fakeStore{Store: store.NewGateway(store.NewMemoryBackend(), store.NewMemoryNotifier(), logger)}
}

func (f *fakeStore) ReadDocument(ctx context.Context, path string) (*store.Document, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.Store.ReadDocument(ctx, path)
}

func (f *fakeStore) CreateDocument(ctx context.Context, path string, fields store.Fields) error {
	f.mu.Lock()
	f.creates++
	f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.Store.CreateDocument(ctx, path, fields)
}

func (f *fakeStore) MergeDocument(ctx context.Context, path string, fields store.Fields) error {
	f.mu.Lock()
	f.merges++
	f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.Store.MergeDocument(ctx, path, fields)
}

func (f *fakeStore) IncrementField(ctx context.Context, path, field string, delta int64) error {
	f.mu.Lock()
	f.increments++
	f.mu.Unlock()
	if f.incrementErr != nil {
		return f.incrementErr
	}
	return f.Store.IncrementField(ctx, path, field, delta)
}

func (f *fakeStore) SubscribeDocument(ctx context.Context, path string) (*store.Subscription[store.DocumentSnapshot], error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	return f.Store.SubscribeDocument(ctx, path)
}

func (f *fakeStore) SubscribeQuery(ctx context.Context, q store.Query) (*store.Subscription[store.QuerySnapshot], error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	return f.Store.SubscribeQuery(ctx, q)
}

func (f *fakeStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates + f.merges + f.increments
}

const tenItems = "alpha\nbravo\ncharlie\ndelta\necho\nfoxtrot\ngolf\nhotel\nindia\njuliet"

func createSession(t *testing.T, st store.Store, id string) {
	t.Helper()
	svc := NewSessionService(st, seededRand(1))
	svc.newID = func() (string, error) { return id, nil }
	if _, err := svc.Create(context.Background(), "creator", tenItems); err != nil {
		t.Fatalf("create session: %v", err)
	}
}

func next[T any](t *testing.T, sub *store.Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		if !ok {
			t.Fatalf("subscription ended: %v", sub.Err())
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	var zero T
	return zero
}
