package lending

import (
	"time"

	"github.com/google/uuid"
)

// LoanOrdering selects the ordering of a ledger listing.
type LoanOrdering int

const (
	// OrderByDueAtAsc sorts most-overdue first (earliest due date first).
	OrderByDueAtAsc LoanOrdering = iota
	// OrderByIssuedAtAsc sorts oldest loan first.
	OrderByIssuedAtAsc
	// OrderByIssuedAtDesc sorts newest loan first.
	OrderByIssuedAtDesc
)

// LoanFilter describes criteria for querying the loan ledger. It is a generic
// filter to be used by store-specific implementations to build queries for
// their query language (in-memory predicates, Postgres SQL, ...).
//
// It is designed to only allow the "useful" combinations for lending
// workflows: by member, by title, open-only, due-before a given instant,
// issued within a period, plus an ordering and an optional limit.
type LoanFilter struct {
	memberID    uuid.UUID
	hasMemberID bool
	titleID     uuid.UUID
	hasTitleID  bool
	openOnly    bool
	dueBefore   time.Time
	issuedFrom  time.Time
	issuedUntil time.Time
	ordering    LoanOrdering
	limit       uint
}

// MemberID returns the member criterion and whether it is set.
func (f LoanFilter) MemberID() (uuid.UUID, bool) {
	return f.memberID, f.hasMemberID
}

// TitleID returns the title criterion and whether it is set.
func (f LoanFilter) TitleID() (uuid.UUID, bool) {
	return f.titleID, f.hasTitleID
}

// OpenOnly reports whether only loans with ReturnedAt unset should match.
func (f LoanFilter) OpenOnly() bool {
	return f.openOnly
}

// DueBefore returns the due-date cutoff and whether it is set.
func (f LoanFilter) DueBefore() (time.Time, bool) {
	return f.dueBefore, !f.dueBefore.IsZero()
}

// IssuedFrom returns the inclusive lower bound on IssuedAt and whether it is set.
func (f LoanFilter) IssuedFrom() (time.Time, bool) {
	return f.issuedFrom, !f.issuedFrom.IsZero()
}

// IssuedUntil returns the exclusive upper bound on IssuedAt and whether it is set.
func (f LoanFilter) IssuedUntil() (time.Time, bool) {
	return f.issuedUntil, !f.issuedUntil.IsZero()
}

// Ordering returns the requested ordering.
func (f LoanFilter) Ordering() LoanOrdering {
	return f.ordering
}

// Limit returns the maximum number of loans to return, 0 meaning unlimited.
func (f LoanFilter) Limit() uint {
	return f.limit
}

/***** LoanFilterBuilder *****/

// LoanFilterBuilder builds a LoanFilter. It sanitizes the input: nil ids and
// zero times are treated as "criterion not set", and an inverted issued
// period is swapped into order.
type LoanFilterBuilder struct {
	filter LoanFilter
}

// BuildLoanFilter creates a LoanFilterBuilder which must eventually be
// finalized with Finalize().
func BuildLoanFilter() LoanFilterBuilder {
	return LoanFilterBuilder{}
}

// ForMember restricts the listing to loans of the given member.
func (fb LoanFilterBuilder) ForMember(memberID uuid.UUID) LoanFilterBuilder {
	if memberID != uuid.Nil {
		fb.filter.memberID = memberID
		fb.filter.hasMemberID = true
	}

	return fb
}

// ForTitle restricts the listing to loans of the given title.
func (fb LoanFilterBuilder) ForTitle(titleID uuid.UUID) LoanFilterBuilder {
	if titleID != uuid.Nil {
		fb.filter.titleID = titleID
		fb.filter.hasTitleID = true
	}

	return fb
}

// OpenOnly restricts the listing to loans that have not been returned.
func (fb LoanFilterBuilder) OpenOnly() LoanFilterBuilder {
	fb.filter.openOnly = true

	return fb
}

// DueBefore restricts the listing to loans strictly due before the cutoff.
// Combined with OpenOnly this selects exactly the overdue loans.
func (fb LoanFilterBuilder) DueBefore(cutoff time.Time) LoanFilterBuilder {
	fb.filter.dueBefore = cutoff

	return fb
}

// IssuedBetween restricts the listing to loans issued in [from, until).
// A zero bound leaves that side open; inverted bounds are swapped.
func (fb LoanFilterBuilder) IssuedBetween(from time.Time, until time.Time) LoanFilterBuilder {
	if !from.IsZero() && !until.IsZero() && from.After(until) {
		from, until = until, from
	}

	fb.filter.issuedFrom = from
	fb.filter.issuedUntil = until

	return fb
}

// OrderedBy sets the ordering of the listing.
func (fb LoanFilterBuilder) OrderedBy(ordering LoanOrdering) LoanFilterBuilder {
	fb.filter.ordering = ordering

	return fb
}

// Limit caps the number of loans returned, 0 meaning unlimited.
func (fb LoanFilterBuilder) Limit(limit uint) LoanFilterBuilder {
	fb.filter.limit = limit

	return fb
}

// Finalize returns the LoanFilter.
func (fb LoanFilterBuilder) Finalize() LoanFilter {
	return fb.filter
}
