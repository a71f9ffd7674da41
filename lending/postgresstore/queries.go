package postgresstore

import (
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/pkleindienst/library-lending-go/lending"
)

const (
	dialectPostgres = "postgres"

	colID              = "id"
	colTitle           = "title"
	colAuthor          = "author"
	colISBN            = "isbn"
	colGenre           = "genre"
	colPublicationYear = "publication_year"
	colTotalCopies     = "total_copies"
	colAvailableCopies = "available_copies"

	colName     = "name"
	colStanding = "standing"

	colTitleID    = "title_id"
	colMemberID   = "member_id"
	colIssuedAt   = "issued_at"
	colDueAt      = "due_at"
	colReturnedAt = "returned_at"

	exprAdjustedAvailability = "available_copies + ?"
	exprAvailabilityInBounds = "available_copies + ? BETWEEN 0 AND total_copies"
)

// ErrBuildingQueryFailed indicates goqu could not render a statement; this is
// a programming error, not a runtime store failure.
var ErrBuildingQueryFailed = errors.New("building sql query failed")

// queryBuilder renders the store's SQL statements for the configured table
// names. Statements are rendered with inline values so they can run through
// any of the driver adapters unchanged.
type queryBuilder struct {
	tables TableNames
}

func (qb queryBuilder) selectTitleQuery(titleID uuid.UUID, lock bool) (string, error) {
	stmt := goqu.Dialect(dialectPostgres).
		From(qb.tables.Titles).
		Select(colID, colTitle, colAuthor, colISBN, colGenre, colPublicationYear, colTotalCopies, colAvailableCopies).
		Where(goqu.Ex{colID: titleID.String()})

	if lock {
		stmt = stmt.ForUpdate(exp.Wait)
	}

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (qb queryBuilder) selectMemberQuery(memberID uuid.UUID) (string, error) {
	stmt := goqu.Dialect(dialectPostgres).
		From(qb.tables.Members).
		Select(colID, colName, colStanding).
		Where(goqu.Ex{colID: memberID.String()})

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (qb queryBuilder) selectLoanQuery(loanID uuid.UUID, lock bool) (string, error) {
	stmt := qb.selectLoansBase().
		Where(goqu.Ex{colID: loanID.String()})

	if lock {
		stmt = stmt.ForUpdate(exp.Wait)
	}

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (qb queryBuilder) selectOpenLoanQuery(memberID uuid.UUID, titleID uuid.UUID) (string, error) {
	stmt := qb.selectLoansBase().
		Where(
			goqu.Ex{colMemberID: memberID.String()},
			goqu.Ex{colTitleID: titleID.String()},
			goqu.C(colReturnedAt).IsNull(),
		).
		Limit(1)

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// adjustAvailabilityQuery renders the guarded counter update. The guard keeps
// the adjusted counter within [0, total_copies]; a statement that affects
// zero rows means the guard (or the id) did not match, which the store maps
// onto the typed lending errors.
func (qb queryBuilder) adjustAvailabilityQuery(titleID uuid.UUID, delta int) (string, error) {
	stmt := goqu.Dialect(dialectPostgres).
		Update(qb.tables.Titles).
		Set(goqu.Record{colAvailableCopies: goqu.L(exprAdjustedAvailability, delta)}).
		Where(
			goqu.Ex{colID: titleID.String()},
			goqu.L(exprAvailabilityInBounds, delta),
		)

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (qb queryBuilder) insertLoanQuery(loan lending.Loan) (string, error) {
	stmt := goqu.Dialect(dialectPostgres).
		Insert(qb.tables.Loans).
		Rows(goqu.Record{
			colID:       loan.ID.String(),
			colTitleID:  loan.TitleID.String(),
			colMemberID: loan.MemberID.String(),
			colIssuedAt: loan.IssuedAt,
			colDueAt:    loan.DueAt,
		})

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// markReturnedQuery renders the guarded return update; the "not yet returned"
// guard makes a double return affect zero rows instead of overwriting the
// first return.
func (qb queryBuilder) markReturnedQuery(loanID uuid.UUID, returnedAt time.Time) (string, error) {
	stmt := goqu.Dialect(dialectPostgres).
		Update(qb.tables.Loans).
		Set(goqu.Record{colReturnedAt: returnedAt}).
		Where(
			goqu.Ex{colID: loanID.String()},
			goqu.C(colReturnedAt).IsNull(),
		)

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (qb queryBuilder) extendDueQuery(loanID uuid.UUID, newDueAt time.Time) (string, error) {
	stmt := goqu.Dialect(dialectPostgres).
		Update(qb.tables.Loans).
		Set(goqu.Record{colDueAt: newDueAt}).
		Where(
			goqu.Ex{colID: loanID.String()},
			goqu.C(colReturnedAt).IsNull(),
		)

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (qb queryBuilder) listLoansQuery(filter lending.LoanFilter) (string, error) {
	stmt := qb.selectLoansBase()

	if memberID, ok := filter.MemberID(); ok {
		stmt = stmt.Where(goqu.Ex{colMemberID: memberID.String()})
	}

	if titleID, ok := filter.TitleID(); ok {
		stmt = stmt.Where(goqu.Ex{colTitleID: titleID.String()})
	}

	if filter.OpenOnly() {
		stmt = stmt.Where(goqu.C(colReturnedAt).IsNull())
	}

	if cutoff, ok := filter.DueBefore(); ok {
		stmt = stmt.Where(goqu.C(colDueAt).Lt(cutoff))
	}

	if from, ok := filter.IssuedFrom(); ok {
		stmt = stmt.Where(goqu.C(colIssuedAt).Gte(from))
	}

	if until, ok := filter.IssuedUntil(); ok {
		stmt = stmt.Where(goqu.C(colIssuedAt).Lt(until))
	}

	switch filter.Ordering() {
	case lending.OrderByIssuedAtAsc:
		stmt = stmt.Order(goqu.I(colIssuedAt).Asc())
	case lending.OrderByIssuedAtDesc:
		stmt = stmt.Order(goqu.I(colIssuedAt).Desc())
	case lending.OrderByDueAtAsc:
		stmt = stmt.Order(goqu.I(colDueAt).Asc())
	}

	if limit := filter.Limit(); limit > 0 {
		stmt = stmt.Limit(limit)
	}

	sqlQuery, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (qb queryBuilder) selectLoansBase() *goqu.SelectDataset {
	return goqu.Dialect(dialectPostgres).
		From(qb.tables.Loans).
		Select(colID, colTitleID, colMemberID, colIssuedAt, colDueAt, colReturnedAt)
}
