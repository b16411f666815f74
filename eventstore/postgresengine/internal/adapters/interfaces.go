package adapters

import "context"

// DBAdapter is the driver-neutral interface the postgres engine uses.
type DBAdapter interface {
	// Query executes a parameterized select and returns a row iterator.
	// Implementations with a replica pool route the query according to the
	// consistency level carried in ctx.
	Query(ctx context.Context, query string, args ...any) (DBRows, error)

	// BeginTx starts a transaction on the primary.
	BeginTx(ctx context.Context) (DBTx, error)
}

// DBRows is the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBRow is a single-row result; the execution error surfaces at Scan.
type DBRow interface {
	Scan(dest ...any) error
}

// DBTx is an open transaction. Rollback after Commit must be a no-op error
// that callers can ignore, matching the underlying drivers.
type DBTx interface {
	QueryRow(ctx context.Context, query string, args ...any) DBRow
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
