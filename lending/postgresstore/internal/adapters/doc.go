// Package adapters provides database driver adapters for the PostgreSQL
// lending store.
//
// This package implements a common interface for database operations across
// different PostgreSQL drivers, allowing the store to work with pgx.Pool,
// sql.DB, and sqlx.DB connections transparently, including transactions.
//
// Key components:
//   - DBAdapter: common interface for queries, statements and transactions
//   - DBTx: common interface for an open transaction
//   - PGXAdapter: adapter for pgxpool.Pool connections
//   - SQLAdapter: adapter for database/sql connections
//   - SQLXAdapter: adapter for sqlx.DB connections
//
// The adapters handle driver-specific differences in transaction handling,
// result processing and row scanning while providing a consistent interface
// to the store.
package adapters
