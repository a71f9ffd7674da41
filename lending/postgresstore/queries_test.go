package postgresstore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkleindienst/library-lending-go/lending"
)

func testQueryBuilder() queryBuilder {
	return queryBuilder{tables: TableNames{
		Titles:  defaultTitlesTableName,
		Members: defaultMembersTableName,
		Loans:   defaultLoansTableName,
	}}
}

func Test_QueryBuilder_SelectTitle_LockedAndUnlocked(t *testing.T) {
	// arrange
	qb := testQueryBuilder()
	titleID := uuid.New()

	// act
	unlocked, err := qb.selectTitleQuery(titleID, false)
	require.NoError(t, err)
	locked, err := qb.selectTitleQuery(titleID, true)
	require.NoError(t, err)

	// assert
	assert.Contains(t, unlocked, `"book_titles"`)
	assert.Contains(t, unlocked, titleID.String())
	assert.NotContains(t, unlocked, "FOR UPDATE")
	assert.Contains(t, locked, "FOR UPDATE")
}

func Test_QueryBuilder_SelectMember_FiltersByID(t *testing.T) {
	// arrange
	qb := testQueryBuilder()
	memberID := uuid.New()

	// act
	sqlQuery, err := qb.selectMemberQuery(memberID)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `"members"`)
	assert.Contains(t, sqlQuery, `"standing"`)
	assert.Contains(t, sqlQuery, memberID.String())
}

func Test_QueryBuilder_SelectOpenLoan_RequiresOpenAndLimitsToOne(t *testing.T) {
	// arrange
	qb := testQueryBuilder()
	memberID := uuid.New()
	titleID := uuid.New()

	// act
	sqlQuery, err := qb.selectOpenLoanQuery(memberID, titleID)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `"returned_at" IS NULL`)
	assert.Contains(t, sqlQuery, memberID.String())
	assert.Contains(t, sqlQuery, titleID.String())
	assert.Contains(t, sqlQuery, "LIMIT 1")
}

func Test_QueryBuilder_AdjustAvailability_GuardsCounterBounds(t *testing.T) {
	// arrange
	qb := testQueryBuilder()
	titleID := uuid.New()

	// act
	sqlQuery, err := qb.adjustAvailabilityQuery(titleID, -1)

	// assert: the guard keeps the counter within [0, total_copies] in the
	// same statement that applies the delta
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `UPDATE "book_titles"`)
	assert.Contains(t, sqlQuery, "available_copies + -1")
	assert.Contains(t, sqlQuery, "BETWEEN 0 AND total_copies")
	assert.Contains(t, sqlQuery, titleID.String())
}

func Test_QueryBuilder_InsertLoan_LeavesReturnedAtUnset(t *testing.T) {
	// arrange
	qb := testQueryBuilder()
	issuedAt := time.Unix(0, 0).UTC()
	loan := lending.Loan{
		ID:       uuid.New(),
		TitleID:  uuid.New(),
		MemberID: uuid.New(),
		IssuedAt: issuedAt,
		DueAt:    issuedAt.Add(14 * 24 * time.Hour),
	}

	// act
	sqlQuery, err := qb.insertLoanQuery(loan)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `INSERT INTO "loans"`)
	assert.Contains(t, sqlQuery, loan.ID.String())
	assert.Contains(t, sqlQuery, loan.TitleID.String())
	assert.Contains(t, sqlQuery, loan.MemberID.String())
	assert.NotContains(t, sqlQuery, "returned_at")
}

func Test_QueryBuilder_MarkReturned_GuardedByNotYetReturned(t *testing.T) {
	// arrange
	qb := testQueryBuilder()
	loanID := uuid.New()
	returnedAt := time.Unix(0, 0).UTC().Add(24 * time.Hour)

	// act
	sqlQuery, err := qb.markReturnedQuery(loanID, returnedAt)

	// assert: a double return must match zero rows instead of overwriting
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `UPDATE "loans"`)
	assert.Contains(t, sqlQuery, `"returned_at" IS NULL`)
	assert.Contains(t, sqlQuery, loanID.String())
}

func Test_QueryBuilder_ExtendDue_GuardedByNotYetReturned(t *testing.T) {
	// arrange
	qb := testQueryBuilder()
	loanID := uuid.New()
	newDueAt := time.Unix(0, 0).UTC().Add(28 * 24 * time.Hour)

	// act
	sqlQuery, err := qb.extendDueQuery(loanID, newDueAt)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `UPDATE "loans"`)
	assert.Contains(t, sqlQuery, `"due_at"`)
	assert.Contains(t, sqlQuery, `"returned_at" IS NULL`)
	assert.Contains(t, sqlQuery, loanID.String())
}

func Test_QueryBuilder_ListLoans_EmptyFilterSelectsEverything(t *testing.T) {
	// arrange
	qb := testQueryBuilder()

	// act
	sqlQuery, err := qb.listLoansQuery(lending.BuildLoanFilter().Finalize())

	// assert: no WHERE, default due-date ordering, no limit
	require.NoError(t, err)
	assert.NotContains(t, sqlQuery, "WHERE")
	assert.Contains(t, sqlQuery, `ORDER BY "due_at" ASC`)
	assert.NotContains(t, sqlQuery, "LIMIT")
}

func Test_QueryBuilder_ListLoans_AppliesAllCriteria(t *testing.T) {
	// arrange
	qb := testQueryBuilder()
	memberID := uuid.New()
	titleID := uuid.New()
	cutoff := time.Unix(0, 0).UTC().Add(24 * time.Hour)

	filter := lending.BuildLoanFilter().
		ForMember(memberID).
		ForTitle(titleID).
		OpenOnly().
		DueBefore(cutoff).
		OrderedBy(lending.OrderByIssuedAtDesc).
		Limit(25).
		Finalize()

	// act
	sqlQuery, err := qb.listLoansQuery(filter)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, memberID.String())
	assert.Contains(t, sqlQuery, titleID.String())
	assert.Contains(t, sqlQuery, `"returned_at" IS NULL`)
	assert.Contains(t, sqlQuery, `"due_at" <`)
	assert.Contains(t, sqlQuery, `ORDER BY "issued_at" DESC`)
	assert.Contains(t, sqlQuery, "LIMIT 25")
}

func Test_QueryBuilder_ListLoans_IssuedWindowBounds(t *testing.T) {
	// arrange
	qb := testQueryBuilder()
	from := time.Unix(0, 0).UTC()
	until := from.Add(30 * 24 * time.Hour)

	filter := lending.BuildLoanFilter().IssuedBetween(from, until).Finalize()

	// act
	sqlQuery, err := qb.listLoansQuery(filter)

	// assert: inclusive lower bound, exclusive upper bound
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `"issued_at" >=`)
	assert.Contains(t, sqlQuery, `"issued_at" <`)
}

func Test_QueryBuilder_CustomTableNames_AreUsed(t *testing.T) {
	// arrange
	qb := queryBuilder{tables: TableNames{
		Titles:  "catalog_titles",
		Members: "patrons",
		Loans:   "loan_ledger",
	}}

	// act
	titleQuery, err := qb.selectTitleQuery(uuid.New(), false)
	require.NoError(t, err)
	memberQuery, err := qb.selectMemberQuery(uuid.New())
	require.NoError(t, err)
	loanQuery, err := qb.selectLoanQuery(uuid.New(), false)
	require.NoError(t, err)

	// assert
	assert.Contains(t, titleQuery, `"catalog_titles"`)
	assert.Contains(t, memberQuery, `"patrons"`)
	assert.Contains(t, loanQuery, `"loan_ledger"`)
}
