package adapters

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/replay-es/replay-go/eventstore"
)

// PGXAdapter implements DBAdapter for pgxpool.Pool.
type PGXAdapter struct {
	pool        *pgxpool.Pool
	replicaPool *pgxpool.Pool // optional replica for eventually-consistent reads
}

// NewPGXAdapter creates a PGX adapter with a primary pool.
func NewPGXAdapter(pool *pgxpool.Pool) *PGXAdapter {
	return &PGXAdapter{pool: pool}
}

// NewPGXAdapterWithReplica creates a PGX adapter with a primary and a replica
// pool. Reads go to the replica only when the context carries
// EventualConsistency; StrongConsistency (the default) pins them to the primary.
func NewPGXAdapterWithReplica(pool *pgxpool.Pool, replica *pgxpool.Pool) *PGXAdapter {
	return &PGXAdapter{pool: pool, replicaPool: replica}
}

// Query executes a parameterized select on the pool chosen by the context's
// consistency level.
func (p *PGXAdapter) Query(ctx context.Context, query string, args ...any) (DBRows, error) {
	pool := p.pool

	if p.replicaPool != nil && eventstore.GetConsistencyLevel(ctx) == eventstore.EventualConsistency {
		pool = p.replicaPool
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, normalizePGXError(err)
	}

	return &pgxRows{rows: rows}, nil
}

// BeginTx starts a transaction on the primary pool.
func (p *PGXAdapter) BeginTx(ctx context.Context) (DBTx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, normalizePGXError(err)
	}

	return &pgxTx{tx: tx}, nil
}

type pgxTx struct {
	tx pgx.Tx
}

func (t *pgxTx) QueryRow(ctx context.Context, query string, args ...any) DBRow {
	return &pgxRow{row: t.tx.QueryRow(ctx, query, args...)}
}

func (t *pgxTx) Commit(ctx context.Context) error {
	return normalizePGXError(t.tx.Commit(ctx))
}

func (t *pgxTx) Rollback(ctx context.Context) error {
	return normalizePGXError(t.tx.Rollback(ctx))
}

type pgxRow struct {
	row pgx.Row
}

func (r *pgxRow) Scan(dest ...any) error {
	return normalizePGXError(r.row.Scan(dest...))
}

type pgxRows struct {
	rows pgx.Rows
}

func (p *pgxRows) Next() bool { return p.rows.Next() }

func (p *pgxRows) Scan(dest ...any) error {
	return normalizePGXError(p.rows.Scan(dest...))
}

func (p *pgxRows) Err() error { return normalizePGXError(p.rows.Err()) }

func (p *pgxRows) Close() error {
	p.rows.Close()
	return nil
}

// normalizePGXError maps conflict SQLSTATEs to *ConflictError and passes
// everything else through unchanged.
func normalizePGXError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if conflict := conflictFromSQLState(pgErr.Code, pgErr.Detail); conflict != nil {
			return conflict
		}
	}

	return err
}
