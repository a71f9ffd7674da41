// Package postgresstore provides a PostgreSQL implementation of the lending.Store interface.
//
// This package persists the catalog, membership, and loan ledger in PostgreSQL,
// supporting multiple database adapters (pgx, sql.DB, sqlx) with row-level
// locking and guarded counter updates for concurrency control.
//
// Key features:
//   - Multiple database adapter support (PGX, SQL, SQLX)
//   - SELECT ... FOR UPDATE locking inside command transactions
//   - Guarded availability updates that can never oversell a title
//   - Configurable table names and dual-logger support
//   - Transaction-safe operations with proper resource cleanup
//
// Usage examples:
//
//	// Basic usage
//	db, _ := pgxpool.New(context.Background(), dsn)
//	store, _ := postgresstore.NewStoreFromPGXPool(db)
//
//	// With custom table names and SQL debug logging
//	store, _ := postgresstore.NewStoreFromPGXPool(
//		db,
//		postgresstore.WithTableNames(postgresstore.TableNames{
//			Titles:  "catalog_titles",
//			Members: "patrons",
//			Loans:   "loan_ledger",
//		}),
//		postgresstore.WithLogger(debugLogger),
//	)
//
//	engine, _ := lending.NewEngine(store)
//	loan, err := engine.Issue(ctx, lending.BuildIssueCommand(memberID, titleID))
package postgresstore
