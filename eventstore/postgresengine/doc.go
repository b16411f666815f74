// Package postgresengine provides the PostgreSQL implementation of the
// eventstore interface.
//
// Appends run through the append_event database function inside one
// transaction, which serializes writers per stream and enforces the
// optimistic-concurrency check inside the database. Reads compile the filter
// tree into a single parameterized select whose rows are streamed lazily to
// the caller.
//
// Key features:
//   - Multiple database adapter support (pgx pool, sql.DB, sqlx)
//   - Atomic batch appends with compare-and-append concurrency control
//   - Full filter algebra compiled to parameterized SQL, including
//     jsonb containment for metadata matching
//   - Optional read replica routing driven by the context consistency level
//   - Configurable table names, dual loggers, metrics and tracing
//
// Usage examples:
//
//	// Basic usage
//	db, _ := pgxpool.New(context.Background(), dsn)
//	store, _ := postgresengine.NewEventStoreFromPGXPool(db)
//
//	// With observability
//	store, _ := postgresengine.NewEventStoreFromPGXPool(
//		db,
//		postgresengine.WithContextualLogger(logger),
//		postgresengine.WithMetrics(collector),
//		postgresengine.WithTracing(tracer),
//	)
//
//	err := store.AppendEvents(ctx, streamID, "account", metadata, events, eventstore.ExactVersion(3))
//	for envelope, err := range store.StreamEvents(ctx, eventstore.WithStreamID(streamID)) { ... }
//
// The required schema and the append_event function live in schema.sql next
// to this package.
package postgresengine
