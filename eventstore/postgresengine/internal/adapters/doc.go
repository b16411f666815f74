// Package adapters isolates the postgres engine from the concrete database
// driver. The engine talks to a DBAdapter; the three implementations wrap
// pgxpool.Pool, sqlx.DB and database/sql (lib/pq).
//
// Each adapter normalizes its driver's error values: a failed server-side
// compare-and-append (SQLSTATE 40001, or a unique-constraint race on the
// version column) surfaces as *ConflictError so the engine can classify it
// without importing driver packages.
package adapters
