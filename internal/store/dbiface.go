package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBConn is the statement surface the Postgres backend runs against.
// Document reads select (path, data, create_time, update_time) and come
// back already scanned.
type DBConn interface {
	Exec(ctx context.Context, sql string, args ...any) (rowsAffected int64, err error)
	// QueryDocument returns ErrNotFound when the statement matches no row.
	QueryDocument(ctx context.Context, sql string, args ...any) (*Document, error)
	QueryDocuments(ctx context.Context, sql string, args ...any) ([]Document, error)
}

type pgxPoolLike interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PoolAdapter runs document statements on a pgx pool.
type PoolAdapter struct {
	pool pgxPoolLike
}

func NewPoolAdapter(pool *pgxpool.Pool) *PoolAdapter {
	return &PoolAdapter{pool: pool}
}

func (p *PoolAdapter) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PoolAdapter) QueryDocument(ctx context.Context, sql string, args ...any) (*Document, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	doc, err := pgx.CollectExactlyOneRow(rows, scanDocument)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (p *PoolAdapter) QueryDocuments(ctx context.Context, sql string, args ...any) ([]Document, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	docs, err := pgx.CollectRows(rows, scanDocument)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}

func scanDocument(row pgx.CollectableRow) (Document, error) {
	var doc Document
	var data []byte
	if err := row.Scan(&doc.Path, &data, &doc.CreateTime, &doc.UpdateTime); err != nil {
		return Document{}, err
	}
	doc.Data = data
	return doc, nil
}
