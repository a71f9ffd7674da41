package postgresstore

import (
	"errors"

	"github.com/pkleindienst/library-lending-go/lending"
)

// Default table names; override with WithTableNames when the schema uses
// different ones.
const (
	defaultTitlesTableName  = "book_titles"
	defaultMembersTableName = "members"
	defaultLoansTableName   = "loans"
)

// ErrEmptyTableNameSupplied is returned when WithTableNames receives an
// empty name.
var ErrEmptyTableNameSupplied = errors.New("empty table name supplied")

// TableNames holds the table names the store reads and writes.
type TableNames struct {
	Titles  string
	Members string
	Loans   string
}

// Option defines a functional option for configuring a Store.
type Option func(*Store) error

// WithTableNames sets the table names for the Store.
func WithTableNames(tables TableNames) Option {
	return func(s *Store) error {
		if tables.Titles == "" || tables.Members == "" || tables.Loans == "" {
			return ErrEmptyTableNameSupplied
		}

		s.tables = tables

		return nil
	}
}

// WithLogger sets the logger for the Store.
//
// Debug level: SQL statements with execution timing (development use)
// Warn level: non-critical issues like rollback failures
// Error level: statement failures.
func WithLogger(logger lending.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Store, enabling
// automatic trace/span correlation of SQL logging when tracing is enabled.
func WithContextualLogger(logger lending.ContextualLogger) Option {
	return func(s *Store) error {
		s.contextualLogger = logger
		return nil
	}
}
