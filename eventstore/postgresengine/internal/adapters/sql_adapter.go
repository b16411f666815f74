package adapters

import (
	"context"
	"database/sql"
)

// SQLAdapter implements DBAdapter for a plain database/sql handle backed by
// lib/pq.
type SQLAdapter struct {
	db *sql.DB
}

// NewSQLAdapter creates an adapter for the given database handle.
func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

func (s *SQLAdapter) Query(ctx context.Context, query string, args ...any) (DBRows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, normalizePQError(err)
	}

	return &sqlRows{rows: rows}, nil
}

func (s *SQLAdapter) BeginTx(ctx context.Context) (DBTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, normalizePQError(err)
	}

	return &sqlTx{tx: tx}, nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) QueryRow(ctx context.Context, query string, args ...any) DBRow {
	return &sqlRow{row: t.tx.QueryRowContext(ctx, query, args...)}
}

func (t *sqlTx) Commit(_ context.Context) error {
	return normalizePQError(t.tx.Commit())
}

func (t *sqlTx) Rollback(_ context.Context) error {
	return normalizePQError(t.tx.Rollback())
}
