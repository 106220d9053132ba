package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBackend keeps documents in process memory. It backs local
// development and tests, and follows the Postgres backend's semantics.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string]*memoryDoc
}

type memoryDoc struct {
	collection string
	fields     map[string]json.RawMessage
	createTime time.Time
	updateTime time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]*memoryDoc)}
}

func (b *MemoryBackend) Create(ctx context.Context, path, collection string, data []byte, now time.Time) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.docs[path]; ok {
		return ErrAlreadyExists
	}
	b.docs[path] = &memoryDoc{
		collection: collection,
		fields:     fields,
		createTime: now,
		updateTime: now,
	}
	return nil
}

func (b *MemoryBackend) Get(ctx context.Context, path string) (*Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	doc, ok := b.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.toDocument(path)
}

func (b *MemoryBackend) Merge(ctx context.Context, path, collection string, data []byte, now time.Time) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	doc, ok := b.docs[path]
	if !ok {
		b.docs[path] = &memoryDoc{
			collection: collection,
			fields:     fields,
			createTime: now,
			updateTime: now,
		}
		return nil
	}
	for k, v := range fields {
		doc.fields[k] = v
	}
	doc.updateTime = now
	return nil
}

func (b *MemoryBackend) Increment(ctx context.Context, path, field string, delta int64, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, ok := b.docs[path]
	if !ok {
		return ErrNotFound
	}

	var current int64
	if raw, ok := doc.fields[field]; ok && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("incrementing %s: %w", field, err)
		}
	}
	encoded, err := json.Marshal(current + delta)
	if err != nil {
		return fmt.Errorf("incrementing %s: %w", field, err)
	}
	doc.fields[field] = encoded
	doc.updateTime = now
	return nil
}

func (b *MemoryBackend) Query(ctx context.Context, q Query) ([]Document, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	type candidate struct {
		path    string
		doc     *memoryDoc
		key     time.Time
		haveKey bool
	}

	candidates := make([]candidate, 0)
	for path, doc := range b.docs {
		if doc.collection != q.Collection {
			continue
		}
		c := candidate{path: path, doc: doc}
		if q.OrderBy != "" {
			if raw, ok := doc.fields[q.OrderBy]; ok {
				if err := json.Unmarshal(raw, &c.key); err == nil {
					c.haveKey = true
				}
			}
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		x, y := candidates[i], candidates[j]
		if q.OrderBy != "" {
			if x.haveKey != y.haveKey {
				return x.haveKey
			}
			if !x.key.Equal(y.key) {
				if q.Descending {
					return x.key.After(y.key)
				}
				return x.key.Before(y.key)
			}
		}
		return x.path < y.path
	})

	if q.Limit > 0 && len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}

	docs := make([]Document, 0, len(candidates))
	for _, c := range candidates {
		doc, err := c.doc.toDocument(c.path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

func (d *memoryDoc) toDocument(path string) (*Document, error) {
	data, err := json.Marshal(d.fields)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", path, err)
	}
	return &Document{
		Path:       path,
		Data:       data,
		CreateTime: d.createTime,
		UpdateTime: d.updateTime,
	}, nil
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding fields: %w", err)
	}
	return fields, nil
}
