package store

import (
	"context"
	"errors"
)

// fakeDB records statements and answers them from the configured funcs.
type fakeDB struct {
	ExecFunc           func(sql string, args []any) (int64, error)
	QueryDocumentFunc  func(sql string, args []any) (*Document, error)
	QueryDocumentsFunc func(sql string, args []any) ([]Document, error)

	statements []string
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	f.statements = append(f.statements, sql)
	if f.ExecFunc == nil {
		return 1, nil
	}
	return f.ExecFunc(sql, args)
}

func (f *fakeDB) QueryDocument(_ context.Context, sql string, args ...any) (*Document, error) {
	f.statements = append(f.statements, sql)
	if f.QueryDocumentFunc == nil {
		return nil, errors.New("QueryDocumentFunc not set")
	}
	return f.QueryDocumentFunc(sql, args)
}

func (f *fakeDB) QueryDocuments(_ context.Context, sql string, args ...any) ([]Document, error) {
	f.statements = append(f.statements, sql)
	if f.QueryDocumentsFunc == nil {
		return []Document{}, nil
	}
	return f.QueryDocumentsFunc(sql, args)
}
