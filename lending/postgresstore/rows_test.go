package postgresstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkleindienst/library-lending-go/lending"
	"github.com/pkleindienst/library-lending-go/lending/postgresstore/internal/adapters"
)

// fakeRows simulates a result set that fails mid-stream: it yields rowCount
// rows and then reports iterErr from Err.
type fakeRows struct {
	rowCount int
	iterErr  error
	scan     func(dest ...any) error

	position int
}

func (f *fakeRows) Next() bool {
	if f.position >= f.rowCount {
		return false
	}

	f.position++

	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	return f.scan(dest...)
}

func (f *fakeRows) Err() error {
	return f.iterErr
}

func (f *fakeRows) Close() error {
	return nil
}

// fakeAdapter returns canned rows for every query.
type fakeAdapter struct {
	rows func() adapters.DBRows
}

func (f *fakeAdapter) Query(context.Context, string) (adapters.DBRows, error) {
	return f.rows(), nil
}

func (f *fakeAdapter) Exec(context.Context, string) (adapters.DBResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAdapter) Begin(context.Context) (adapters.DBTx, error) {
	return nil, errors.New("not implemented")
}

func storeWithRows(rows func() adapters.DBRows) *Store {
	tables := TableNames{
		Titles:  defaultTitlesTableName,
		Members: defaultMembersTableName,
		Loans:   defaultLoansTableName,
	}

	return &Store{
		db:      &fakeAdapter{rows: rows},
		tables:  tables,
		queries: queryBuilder{tables: tables},
	}
}

func scanOneLoan(dest ...any) error {
	loanID := uuid.NewString()
	now := time.Unix(0, 0).UTC()

	*(dest[0].(*string)) = loanID
	*(dest[1].(*string)) = uuid.NewString()
	*(dest[2].(*string)) = uuid.NewString()
	*(dest[3].(*time.Time)) = now
	*(dest[4].(*time.Time)) = now.Add(14 * 24 * time.Hour)

	return nil
}

func Test_ListLoans_MidStreamIterationFailure_IsAStoreError(t *testing.T) {
	// arrange: one row scans fine, then iteration breaks off
	iterErr := errors.New("connection reset mid-stream")
	store := storeWithRows(func() adapters.DBRows {
		return &fakeRows{rowCount: 1, iterErr: iterErr, scan: scanOneLoan}
	})

	// act
	loans, err := store.ListLoans(context.Background(), lending.BuildLoanFilter().Finalize())

	// assert: never a silently truncated result set
	require.ErrorIs(t, err, lending.ErrStoreUnavailable)
	assert.ErrorIs(t, err, iterErr)
	assert.Nil(t, loans)
}

func Test_FindTitle_IterationFailure_IsAStoreErrorNotNotFound(t *testing.T) {
	// arrange: zero rows because iteration failed, not because the id is unknown
	iterErr := errors.New("connection reset")
	store := storeWithRows(func() adapters.DBRows {
		return &fakeRows{rowCount: 0, iterErr: iterErr}
	})

	// act
	_, err := store.FindTitle(context.Background(), uuid.New())

	// assert
	require.ErrorIs(t, err, lending.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, lending.ErrTitleNotFound)
}

func Test_FindLoan_IterationFailure_IsAStoreErrorNotNotFound(t *testing.T) {
	// arrange
	iterErr := errors.New("connection reset")
	store := storeWithRows(func() adapters.DBRows {
		return &fakeRows{rowCount: 0, iterErr: iterErr}
	})

	// act
	_, err := store.FindLoan(context.Background(), uuid.New())

	// assert
	require.ErrorIs(t, err, lending.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, lending.ErrLoanNotFound)
}

func Test_FindTitle_NoRowsWithoutIterationError_IsNotFound(t *testing.T) {
	// arrange
	store := storeWithRows(func() adapters.DBRows {
		return &fakeRows{rowCount: 0}
	})

	// act
	_, err := store.FindTitle(context.Background(), uuid.New())

	// assert
	assert.ErrorIs(t, err, lending.ErrTitleNotFound)
}
