package lending

import (
	"time"

	"github.com/google/uuid"
)

// LoanStatus is the derived lifecycle state of a loan.
// Overdue is never stored - it is computed from (ReturnedAt, DueAt, now) at
// read time so a stored flag can never drift against the clock.
type LoanStatus string

const (
	LoanStatusOpen     LoanStatus = "OPEN"
	LoanStatusReturned LoanStatus = "RETURNED"
	LoanStatusOverdue  LoanStatus = "OVERDUE"
)

// Loan is a single borrowing transaction linking one Member to one Title.
// Loans are created by Issue, mutated only by Return (sets ReturnedAt) or
// Renew (extends DueAt), and never deleted - the ledger is the history.
type Loan struct {
	ID         uuid.UUID
	TitleID    uuid.UUID
	MemberID   uuid.UUID
	IssuedAt   time.Time
	DueAt      time.Time
	ReturnedAt *time.Time
}

// IsOpen reports whether the loan has not been returned yet.
func (l Loan) IsOpen() bool {
	return l.ReturnedAt == nil
}

// ComputeStatus derives the loan status at the given instant.
// Pure function: two calls may differ only via the clock, never via stored
// flags. Used uniformly by the engine and by reporting.
func ComputeStatus(loan Loan, now time.Time) LoanStatus {
	if loan.ReturnedAt != nil {
		return LoanStatusReturned
	}

	if now.After(loan.DueAt) {
		return LoanStatusOverdue
	}

	return LoanStatusOpen
}

// DaysOverdue returns the number of whole days the loan is past its due date
// at the given instant, or 0 when the loan is returned or not yet due.
func (l Loan) DaysOverdue(now time.Time) int {
	if ComputeStatus(l, now) != LoanStatusOverdue {
		return 0
	}

	return int(now.Sub(l.DueAt).Hours() / 24)
}

// DaysRemaining returns the number of whole days until the due date,
// negative once the loan is overdue and 0 after it has been returned.
func (l Loan) DaysRemaining(now time.Time) int {
	if l.ReturnedAt != nil {
		return 0
	}

	return int(l.DueAt.Sub(now).Hours() / 24)
}

// FineAmount returns the fine accrued at the given instant with the given
// per-day rate. This is a pure derivation for display and reporting;
// collecting the fine is not part of this core.
func (l Loan) FineAmount(now time.Time, finePerDay float64) float64 {
	return float64(l.DaysOverdue(now)) * finePerDay
}
