// Package store is the gateway to the real-time document store that holds
// sessions and participant records.
//
// Documents live at slash-separated paths with an even number of segments
// ("sessions/abc123", "sessions/abc123/participants/<identity>"). Every
// write is followed by a change notification, and subscriptions turn those
// notifications into a stream of full snapshots.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrInvalidPath   = errors.New("invalid document path")
	ErrInvalidField  = errors.New("invalid field name")
)

// Store is the document store surface the bingo services depend on.
// No operation spans more than one document.
type Store interface {
	CreateDocument(ctx context.Context, path string, fields Fields) error
	ReadDocument(ctx context.Context, path string) (*Document, error)
	MergeDocument(ctx context.Context, path string, fields Fields) error
	IncrementField(ctx context.Context, path, field string, delta int64) error
	QueryDocuments(ctx context.Context, q Query) ([]Document, error)
	SubscribeDocument(ctx context.Context, path string) (*Subscription[DocumentSnapshot], error)
	SubscribeQuery(ctx context.Context, q Query) (*Subscription[QuerySnapshot], error)
}

// Fields is a partial document. Values are encoded with encoding/json.
type Fields map[string]any

type serverTimestamp struct{}

func (serverTimestamp) MarshalJSON() ([]byte, error) {
	return nil, errors.New("store: ServerTimestamp must be resolved before encoding")
}

// ServerTimestamp is replaced with the gateway clock when a write is applied.
// Only top-level field values are resolved.
var ServerTimestamp any = serverTimestamp{}

type Document struct {
	Path       string          `json:"path"`
	Data       json.RawMessage `json:"data"`
	CreateTime time.Time       `json:"create_time"`
	UpdateTime time.Time       `json:"update_time"`
}

// ID returns the last path segment.
func (d Document) ID() string {
	return d.Path[strings.LastIndex(d.Path, "/")+1:]
}

func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", d.Path, err)
	}
	return nil
}

// DocumentSnapshot is the state of one document at a point in time.
// Document is nil when the document does not exist.
type DocumentSnapshot struct {
	Path     string
	Document *Document
}

func (s DocumentSnapshot) Exists() bool {
	return s.Document != nil
}

type QuerySnapshot struct {
	Collection string
	Documents  []Document
}

// Query selects documents of one collection. OrderBy names a timestamp
// field; documents without it sort last and ties break on path.
// A zero Limit means no limit.
type Query struct {
	Collection string
	OrderBy    string
	Descending bool
	Limit      int
}

func (q Query) validate() error {
	if err := validateCollection(q.Collection); err != nil {
		return err
	}
	if q.OrderBy != "" {
		if err := validateField(q.OrderBy); err != nil {
			return err
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("negative limit %d", q.Limit)
	}
	return nil
}

// Doc joins segments into a document path.
func Doc(segments ...string) string {
	return strings.Join(segments, "/")
}

// CollectionOf returns the collection path that contains a document path.
func CollectionOf(path string) (string, error) {
	segments, err := splitPath(path)
	if err != nil {
		return "", err
	}
	if len(segments)%2 != 0 {
		return "", fmt.Errorf("%w: %q is not a document path", ErrInvalidPath, path)
	}
	return strings.Join(segments[:len(segments)-1], "/"), nil
}

func validateCollection(path string) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segments)%2 != 1 {
		return fmt.Errorf("%w: %q is not a collection path", ErrInvalidPath, path)
	}
	return nil
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	segments := strings.Split(path, "/")
	for _, s := range segments {
		if s == "" || strings.TrimSpace(s) != s {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segments, nil
}

func validateField(field string) error {
	if field == "" || len(field) > 64 {
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	for _, r := range field {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isLetter && !isDigit && r != '_' {
			return fmt.Errorf("%w: %q", ErrInvalidField, field)
		}
	}
	return nil
}

// resolveFields swaps ServerTimestamp sentinels for now and encodes the result.
func resolveFields(fields Fields, now time.Time) (json.RawMessage, error) {
	resolved := make(map[string]any, len(fields))
	for key, value := range fields {
		if err := validateField(key); err != nil {
			return nil, err
		}
		if _, ok := value.(serverTimestamp); ok {
			resolved[key] = now
			continue
		}
		resolved[key] = value
	}
	data, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("encoding fields: %w", err)
	}
	return data, nil
}
