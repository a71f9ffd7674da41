package postgresstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/pkleindienst/library-lending-go/lending"
)

// DDL templates; %s is the table name. The CHECK constraints back the store
// level guards: the counter stays within [0, total_copies] and a return can
// never predate the issue.
const (
	createTitlesTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
    id               UUID PRIMARY KEY,
    title            TEXT NOT NULL,
    author           TEXT NOT NULL,
    isbn             TEXT NOT NULL DEFAULT '',
    genre            TEXT NOT NULL DEFAULT '',
    publication_year INTEGER NOT NULL DEFAULT 0,
    total_copies     INTEGER NOT NULL CHECK (total_copies >= 0),
    available_copies INTEGER NOT NULL CHECK (available_copies BETWEEN 0 AND total_copies)
)`

	createMembersTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
    id       UUID PRIMARY KEY,
    name     TEXT NOT NULL,
    standing TEXT NOT NULL DEFAULT 'ACTIVE'
)`

	createLoansTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
    id          UUID PRIMARY KEY,
    title_id    UUID NOT NULL REFERENCES %s (id),
    member_id   UUID NOT NULL REFERENCES %s (id),
    issued_at   TIMESTAMPTZ NOT NULL,
    due_at      TIMESTAMPTZ NOT NULL,
    returned_at TIMESTAMPTZ NULL CHECK (returned_at IS NULL OR returned_at >= issued_at)
)`

	createOpenLoansIndexDDL = `
CREATE INDEX IF NOT EXISTS %s_open_due_at_idx ON %s (due_at) WHERE returned_at IS NULL`

	createMemberLoansIndexDDL = `
CREATE INDEX IF NOT EXISTS %s_member_id_idx ON %s (member_id)`
)

// CreateSchema creates the store's tables and indexes if they do not exist,
// using the configured table names. It is meant for development and test
// setups; production deployments usually run managed migrations instead.
func (s *Store) CreateSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(createTitlesTableDDL, s.tables.Titles),
		fmt.Sprintf(createMembersTableDDL, s.tables.Members),
		fmt.Sprintf(createLoansTableDDL, s.tables.Loans, s.tables.Titles, s.tables.Members),
		fmt.Sprintf(createOpenLoansIndexDDL, s.tables.Loans, s.tables.Loans),
		fmt.Sprintf(createMemberLoansIndexDDL, s.tables.Loans, s.tables.Loans),
	}

	for _, statement := range statements {
		if _, execErr := s.db.Exec(ctx, statement); execErr != nil {
			s.logError(logMsgDBExecFailed, execErr, logAttrQuery, statement)
			return errors.Join(lending.ErrStoreUnavailable, execErr)
		}
	}

	return nil
}
