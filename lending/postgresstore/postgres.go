package postgresstore

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/pkleindienst/library-lending-go/lending"
	"github.com/pkleindienst/library-lending-go/lending/postgresstore/internal/adapters"
)

const (
	logMsgSQLExecuted        = "executed sql for: "
	logMsgDBQueryFailed      = "database query execution failed"
	logMsgDBExecFailed       = "database statement execution failed"
	logMsgCloseRowsFailed    = "failed to close database rows"
	logMsgScanRowFailed      = "failed to scan database row"
	logMsgRowIterationFailed = "database row iteration failed"
	logMsgRowsAffectedFailed = "failed to get rows affected count"
	logMsgBeginTxFailed      = "failed to begin transaction"
	logMsgCommitTxFailed     = "failed to commit transaction"
	logMsgRollbackTxFailed   = "failed to roll back transaction"
	logAttrError             = "error"
	logAttrQuery             = "query"
	logAttrDurationMS        = "duration_ms"
	actionSelect             = "select"
	actionMutation           = "mutation"
)

// ErrNilDatabaseConnection is returned by the constructors when no database
// handle is supplied.
var ErrNilDatabaseConnection = errors.New("database connection must not be nil")

// Store is a PostgreSQL-backed lending.Store. It relies on the database's
// transactional isolation for serialization: reads of title and loan rows
// inside a transaction use SELECT ... FOR UPDATE, so the read-validate-write
// sequence for a record is atomic while unrelated rows proceed concurrently.
type Store struct {
	db               adapters.DBAdapter
	tables           TableNames
	queries          queryBuilder
	logger           lending.Logger
	contextualLogger lending.ContextualLogger
}

// NewStoreFromPGXPool creates a new Store using a pgx pool with optional
// configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options...)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional
// configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options...)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional
// configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options...)
}

func newStore(db adapters.DBAdapter, options ...Option) (*Store, error) {
	store := &Store{
		db: db,
		tables: TableNames{
			Titles:  defaultTitlesTableName,
			Members: defaultMembersTableName,
			Loans:   defaultLoansTableName,
		},
	}

	for _, option := range options {
		if err := option(store); err != nil {
			return nil, err
		}
	}

	store.queries = queryBuilder{tables: store.tables}

	return store, nil
}

// dbRunner is the subset of operations shared by the pool adapter and an
// open transaction.
type dbRunner interface {
	Query(ctx context.Context, query string) (adapters.DBRows, error)
	Exec(ctx context.Context, query string) (adapters.DBResult, error)
}

/***** Reader *****/

// FindTitle returns the committed catalog record for the id.
func (s *Store) FindTitle(ctx context.Context, titleID uuid.UUID) (lending.BookTitle, error) {
	return s.queryTitle(ctx, s.db, titleID, false)
}

// FindMember returns the committed member record for the id.
func (s *Store) FindMember(ctx context.Context, memberID uuid.UUID) (lending.Member, error) {
	return s.queryMember(ctx, s.db, memberID)
}

// FindLoan returns the committed ledger record for the id.
func (s *Store) FindLoan(ctx context.Context, loanID uuid.UUID) (lending.Loan, error) {
	return s.queryLoan(ctx, s.db, loanID, false)
}

// ListLoans returns the committed loans matching the filter, ordered and
// limited as requested.
func (s *Store) ListLoans(ctx context.Context, filter lending.LoanFilter) ([]lending.Loan, error) {
	sqlQuery, buildErr := s.queries.listLoansQuery(filter)
	if buildErr != nil {
		return nil, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, s.db, sqlQuery)
	if queryErr != nil {
		return nil, queryErr
	}
	defer s.closeRows(rows)

	loans := make([]lending.Loan, 0)

	for rows.Next() {
		loan, scanErr := s.scanLoan(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		loans = append(loans, loan)
	}

	// A mid-stream failure ends iteration early; without this check it would
	// pass as a truncated but valid result set.
	if iterErr := rows.Err(); iterErr != nil {
		s.logError(logMsgRowIterationFailed, iterErr)
		return nil, errors.Join(lending.ErrStoreUnavailable, iterErr)
	}

	return loans, nil
}

/***** transactions *****/

// WithinTx runs fn inside a database transaction. The keys are ignored: row
// level locks taken by the in-transaction reads provide the serialization
// that in-process backends derive from the keys.
func (s *Store) WithinTx(ctx context.Context, _ lending.TxKeys, fn func(tx lending.TxStore) error) error {
	tx, beginErr := s.db.Begin(ctx)
	if beginErr != nil {
		s.logError(logMsgBeginTxFailed, beginErr)
		return errors.Join(lending.ErrStoreUnavailable, beginErr)
	}

	view := &txStore{store: s, tx: tx}

	if err := fn(view); err != nil {
		s.rollback(ctx, tx)
		return err
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		s.logError(logMsgCommitTxFailed, commitErr)
		s.rollback(ctx, tx)

		return errors.Join(lending.ErrStoreUnavailable, commitErr)
	}

	return nil
}

func (s *Store) rollback(ctx context.Context, tx adapters.DBTx) {
	if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
		if s.logger != nil {
			s.logger.Warn(logMsgRollbackTxFailed, logAttrError, rollbackErr.Error())
		}
	}
}

// txStore implements lending.TxStore on an open transaction. Title and loan
// reads lock the selected rows (FOR UPDATE) so concurrent transactions on
// the same records serialize; member reads do not lock since membership
// records are mutated outside this core.
type txStore struct {
	store *Store
	tx    adapters.DBTx
}

func (t *txStore) FindTitle(ctx context.Context, titleID uuid.UUID) (lending.BookTitle, error) {
	return t.store.queryTitle(ctx, t.tx, titleID, true)
}

func (t *txStore) FindMember(ctx context.Context, memberID uuid.UUID) (lending.Member, error) {
	return t.store.queryMember(ctx, t.tx, memberID)
}

func (t *txStore) FindLoan(ctx context.Context, loanID uuid.UUID) (lending.Loan, error) {
	return t.store.queryLoan(ctx, t.tx, loanID, true)
}

func (t *txStore) FindOpenLoan(ctx context.Context, memberID uuid.UUID, titleID uuid.UUID) (lending.Loan, error) {
	sqlQuery, buildErr := t.store.queries.selectOpenLoanQuery(memberID, titleID)
	if buildErr != nil {
		return lending.Loan{}, buildErr
	}

	return t.store.querySingleLoan(ctx, t.tx, sqlQuery)
}

func (t *txStore) AdjustAvailability(ctx context.Context, titleID uuid.UUID, delta int) error {
	sqlQuery, buildErr := t.store.queries.adjustAvailabilityQuery(titleID, delta)
	if buildErr != nil {
		return buildErr
	}

	rowsAffected, execErr := t.store.executeMutation(ctx, t.tx, sqlQuery)
	if execErr != nil {
		return execErr
	}

	if rowsAffected > 0 {
		return nil
	}

	// The guard did not match: either the title is gone or the counter would
	// leave [0, total_copies]. A failed decrement means a racing transaction
	// took the last copy; a failed increment means the ledger and the counter
	// disagree, which is fatal.
	if _, findErr := t.store.queryTitle(ctx, t.tx, titleID, false); findErr != nil {
		return findErr
	}

	if delta < 0 {
		return lending.ErrNoCopiesAvailable
	}

	return lending.ErrInvariantViolation
}

func (t *txStore) InsertLoan(ctx context.Context, loan lending.Loan) error {
	sqlQuery, buildErr := t.store.queries.insertLoanQuery(loan)
	if buildErr != nil {
		return buildErr
	}

	_, execErr := t.store.executeMutation(ctx, t.tx, sqlQuery)

	return execErr
}

func (t *txStore) MarkReturned(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) error {
	sqlQuery, buildErr := t.store.queries.markReturnedQuery(loanID, returnedAt)
	if buildErr != nil {
		return buildErr
	}

	return t.execLoanGuarded(ctx, sqlQuery, loanID)
}

func (t *txStore) ExtendDue(ctx context.Context, loanID uuid.UUID, newDueAt time.Time) error {
	sqlQuery, buildErr := t.store.queries.extendDueQuery(loanID, newDueAt)
	if buildErr != nil {
		return buildErr
	}

	return t.execLoanGuarded(ctx, sqlQuery, loanID)
}

// execLoanGuarded runs a loan mutation guarded by "not yet returned" and
// classifies a zero-rows result.
func (t *txStore) execLoanGuarded(ctx context.Context, sqlQuery string, loanID uuid.UUID) error {
	rowsAffected, execErr := t.store.executeMutation(ctx, t.tx, sqlQuery)
	if execErr != nil {
		return execErr
	}

	if rowsAffected > 0 {
		return nil
	}

	if _, findErr := t.store.queryLoan(ctx, t.tx, loanID, false); findErr != nil {
		return findErr
	}

	return lending.ErrLoanAlreadyReturned
}

/***** shared query execution and scanning *****/

func (s *Store) queryTitle(ctx context.Context, run dbRunner, titleID uuid.UUID, lock bool) (lending.BookTitle, error) {
	sqlQuery, buildErr := s.queries.selectTitleQuery(titleID, lock)
	if buildErr != nil {
		return lending.BookTitle{}, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, run, sqlQuery)
	if queryErr != nil {
		return lending.BookTitle{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		if iterErr := rows.Err(); iterErr != nil {
			s.logError(logMsgRowIterationFailed, iterErr)
			return lending.BookTitle{}, errors.Join(lending.ErrStoreUnavailable, iterErr)
		}

		return lending.BookTitle{}, lending.ErrTitleNotFound
	}

	var (
		title lending.BookTitle
		rawID string
	)

	scanErr := rows.Scan(
		&rawID, &title.Title, &title.Author, &title.ISBN, &title.Genre,
		&title.PublicationYear, &title.TotalCopies, &title.AvailableCopies,
	)
	if scanErr != nil {
		s.logError(logMsgScanRowFailed, scanErr)
		return lending.BookTitle{}, errors.Join(lending.ErrStoreUnavailable, scanErr)
	}

	parsedID, parseErr := uuid.Parse(rawID)
	if parseErr != nil {
		return lending.BookTitle{}, errors.Join(lending.ErrStoreUnavailable, parseErr)
	}

	title.ID = parsedID

	return title, nil
}

func (s *Store) queryMember(ctx context.Context, run dbRunner, memberID uuid.UUID) (lending.Member, error) {
	sqlQuery, buildErr := s.queries.selectMemberQuery(memberID)
	if buildErr != nil {
		return lending.Member{}, buildErr
	}

	rows, queryErr := s.executeQuery(ctx, run, sqlQuery)
	if queryErr != nil {
		return lending.Member{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		if iterErr := rows.Err(); iterErr != nil {
			s.logError(logMsgRowIterationFailed, iterErr)
			return lending.Member{}, errors.Join(lending.ErrStoreUnavailable, iterErr)
		}

		return lending.Member{}, lending.ErrMemberNotFound
	}

	var (
		member      lending.Member
		rawID       string
		rawStanding string
	)

	scanErr := rows.Scan(&rawID, &member.Name, &rawStanding)
	if scanErr != nil {
		s.logError(logMsgScanRowFailed, scanErr)
		return lending.Member{}, errors.Join(lending.ErrStoreUnavailable, scanErr)
	}

	parsedID, parseErr := uuid.Parse(rawID)
	if parseErr != nil {
		return lending.Member{}, errors.Join(lending.ErrStoreUnavailable, parseErr)
	}

	member.ID = parsedID
	member.Standing = lending.Standing(rawStanding)

	return member, nil
}

func (s *Store) queryLoan(ctx context.Context, run dbRunner, loanID uuid.UUID, lock bool) (lending.Loan, error) {
	sqlQuery, buildErr := s.queries.selectLoanQuery(loanID, lock)
	if buildErr != nil {
		return lending.Loan{}, buildErr
	}

	return s.querySingleLoan(ctx, run, sqlQuery)
}

func (s *Store) querySingleLoan(ctx context.Context, run dbRunner, sqlQuery string) (lending.Loan, error) {
	rows, queryErr := s.executeQuery(ctx, run, sqlQuery)
	if queryErr != nil {
		return lending.Loan{}, queryErr
	}
	defer s.closeRows(rows)

	if !rows.Next() {
		if iterErr := rows.Err(); iterErr != nil {
			s.logError(logMsgRowIterationFailed, iterErr)
			return lending.Loan{}, errors.Join(lending.ErrStoreUnavailable, iterErr)
		}

		return lending.Loan{}, lending.ErrLoanNotFound
	}

	return s.scanLoan(rows)
}

func (s *Store) scanLoan(rows adapters.DBRows) (lending.Loan, error) {
	var (
		loan        lending.Loan
		rawID       string
		rawTitleID  string
		rawMemberID string
		returnedAt  sql.NullTime
	)

	scanErr := rows.Scan(&rawID, &rawTitleID, &rawMemberID, &loan.IssuedAt, &loan.DueAt, &returnedAt)
	if scanErr != nil {
		s.logError(logMsgScanRowFailed, scanErr)
		return lending.Loan{}, errors.Join(lending.ErrStoreUnavailable, scanErr)
	}

	for _, pair := range []struct {
		raw  string
		dest *uuid.UUID
	}{
		{rawID, &loan.ID},
		{rawTitleID, &loan.TitleID},
		{rawMemberID, &loan.MemberID},
	} {
		parsed, parseErr := uuid.Parse(pair.raw)
		if parseErr != nil {
			return lending.Loan{}, errors.Join(lending.ErrStoreUnavailable, parseErr)
		}

		*pair.dest = parsed
	}

	if returnedAt.Valid {
		value := returnedAt.Time
		loan.ReturnedAt = &value
	}

	return loan, nil
}

func (s *Store) executeQuery(ctx context.Context, run dbRunner, sqlQuery string) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := run.Query(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, actionSelect, time.Since(start))

	if queryErr != nil {
		s.logError(logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, errors.Join(lending.ErrStoreUnavailable, queryErr)
	}

	return rows, nil
}

func (s *Store) executeMutation(ctx context.Context, run dbRunner, sqlQuery string) (int64, error) {
	start := time.Now()
	result, execErr := run.Exec(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, actionMutation, time.Since(start))

	if execErr != nil {
		s.logError(logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return 0, errors.Join(lending.ErrStoreUnavailable, execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		s.logError(logMsgRowsAffectedFailed, rowsAffectedErr)
		return 0, errors.Join(lending.ErrStoreUnavailable, rowsAffectedErr)
	}

	return rowsAffected, nil
}

func (s *Store) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if s.logger != nil {
			s.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// logQueryWithDuration logs SQL statements with execution time at debug level
// if a logger is configured.
func (s *Store) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	durationMS := math.Round(float64(duration.Nanoseconds())/1e6*1000) / 1000

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, logAttrDurationMS, durationMS, logAttrQuery, sqlQuery)
		return
	}

	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, durationMS, logAttrQuery, sqlQuery)
	}
}

// logError logs error information at the error level if a logger is configured.
func (s *Store) logError(message string, err error, args ...any) {
	if s.logger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		s.logger.Error(message, allArgs...)
	}
}

var _ lending.Store = (*Store)(nil)
var _ lending.TxStore = (*txStore)(nil)
