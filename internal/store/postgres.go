package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PostgresBackend keeps documents as JSONB rows in the documents table.
type PostgresBackend struct {
	db DBConn
}

func NewPostgresBackend(db DBConn) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Create(ctx context.Context, path, collection string, data []byte, now time.Time) error {
	n, err := b.db.Exec(ctx,
		`INSERT INTO documents (path, collection, data, create_time, update_time)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (path) DO NOTHING`,
		path, collection, string(data), now,
	)
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (b *PostgresBackend) Get(ctx context.Context, path string) (*Document, error) {
	doc, err := b.db.QueryDocument(ctx,
		`SELECT path, data, create_time, update_time
		 FROM documents
		 WHERE path = $1`,
		path,
	)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return doc, nil
}

// Merge overlays the top-level keys of data onto the stored document,
// creating it when absent.
func (b *PostgresBackend) Merge(ctx context.Context, path, collection string, data []byte, now time.Time) error {
	_, err := b.db.Exec(ctx,
		`INSERT INTO documents (path, collection, data, create_time, update_time)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (path)
		 DO UPDATE SET data = documents.data || EXCLUDED.data,
		               update_time = EXCLUDED.update_time`,
		path, collection, string(data), now,
	)
	if err != nil {
		return fmt.Errorf("merging document: %w", err)
	}
	return nil
}

// Increment adds delta in a single UPDATE, independent of any cached value.
func (b *PostgresBackend) Increment(ctx context.Context, path, field string, delta int64, now time.Time) error {
	n, err := b.db.Exec(ctx,
		`UPDATE documents
		 SET data = jsonb_set(data, ARRAY[$2::text], to_jsonb(COALESCE((data->>$2::text)::bigint, 0) + $3::bigint), true),
		     update_time = $4
		 WHERE path = $1`,
		path, field, delta, now,
	)
	if err != nil {
		return fmt.Errorf("incrementing %s: %w", field, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *PostgresBackend) Query(ctx context.Context, q Query) ([]Document, error) {
	sql := `SELECT path, data, create_time, update_time
		 FROM documents
		 WHERE collection = $1`
	args := []any{q.Collection}

	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		direction := "ASC"
		if q.Descending {
			direction = "DESC"
		}
		sql += fmt.Sprintf("\n\t\t ORDER BY (data->>$%d::text)::timestamptz %s NULLS LAST, path", len(args), direction)
	} else {
		sql += "\n\t\t ORDER BY path"
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf("\n\t\t LIMIT $%d", len(args))
	}

	docs, err := b.db.QueryDocuments(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", q.Collection, err)
	}
	return docs, nil
}
