// Package sqlite provides an embedded SQLite implementation of driven port
// interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. One database file serves:
//
//   - VectorIndex: chunk vectors and payload, searched by brute-force cosine
//   - SchedulerStore: background job state and run history
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql
// files; applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha-rag/data/index.db
//
// # Thread Safety
//
// All operations are thread-safe. The store relies on SQLite's WAL mode and
// a busy timeout for concurrent writers.
package sqlite
