package adapters

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SQLXAdapter implements DBAdapter for sqlx.DB backed by lib/pq.
type SQLXAdapter struct {
	db *sqlx.DB
}

// NewSQLXAdapter creates an adapter for the given sqlx database handle.
func NewSQLXAdapter(db *sqlx.DB) *SQLXAdapter {
	return &SQLXAdapter{db: db}
}

func (s *SQLXAdapter) Query(ctx context.Context, query string, args ...any) (DBRows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, normalizePQError(err)
	}

	return &sqlRows{rows: rows}, nil
}

func (s *SQLXAdapter) BeginTx(ctx context.Context) (DBTx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, normalizePQError(err)
	}

	return &sqlxTx{tx: tx}, nil
}

type sqlxTx struct {
	tx *sqlx.Tx
}

func (t *sqlxTx) QueryRow(ctx context.Context, query string, args ...any) DBRow {
	return &sqlRow{row: t.tx.QueryRowContext(ctx, query, args...)}
}

func (t *sqlxTx) Commit(_ context.Context) error {
	return normalizePQError(t.tx.Commit())
}

func (t *sqlxTx) Rollback(_ context.Context) error {
	return normalizePQError(t.tx.Rollback())
}

type sqlRow struct {
	row *sql.Row
}

func (r *sqlRow) Scan(dest ...any) error {
	return normalizePQError(r.row.Scan(dest...))
}

type sqlRows struct {
	rows *sql.Rows
}

func (s *sqlRows) Next() bool { return s.rows.Next() }

func (s *sqlRows) Scan(dest ...any) error {
	return normalizePQError(s.rows.Scan(dest...))
}

func (s *sqlRows) Err() error { return normalizePQError(s.rows.Err()) }

func (s *sqlRows) Close() error { return s.rows.Close() }

// normalizePQError maps conflict SQLSTATEs raised through lib/pq to
// *ConflictError and passes everything else through unchanged.
func normalizePQError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if conflict := conflictFromSQLState(string(pqErr.Code), pqErr.Detail); conflict != nil {
			return conflict
		}
	}

	return err
}
