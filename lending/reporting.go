package lending

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// LoanRecord pairs a ledger entry with its status derived at report time.
type LoanRecord struct {
	Loan        Loan
	Status      LoanStatus
	DaysOverdue int
}

// MemberHistory is the per-member loan history aggregation.
type MemberHistory struct {
	Member          Member
	Loans           []LoanRecord
	ActiveLoanCount int
}

// TitleTurnover counts the loans issued for one title within a period.
type TitleTurnover struct {
	Title     BookTitle
	LoanCount int
}

// Reporting exposes the read-only aggregations over the loan ledger. It is
// stateless: every call recomputes from committed ledger state and
// ComputeStatus, so reported overdue status can never drift against stored
// flags. Reports never block mutations and never observe a partially
// committed transaction.
type Reporting struct {
	store Store
}

// NewReporting creates a Reporting view over the given store.
func NewReporting(store Store) (*Reporting, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	return &Reporting{store: store}, nil
}

// OverdueLoans returns all loans overdue at the given instant with their
// derived status, ordered by due date ascending (most overdue first).
func (r *Reporting) OverdueLoans(ctx context.Context, now time.Time) ([]LoanRecord, error) {
	filter := BuildLoanFilter().
		OpenOnly().
		DueBefore(now).
		OrderedBy(OrderByDueAtAsc).
		Finalize()

	loans, err := r.store.ListLoans(ctx, filter)
	if err != nil {
		return nil, err
	}

	records := make([]LoanRecord, 0, len(loans))
	for _, loan := range loans {
		records = append(records, LoanRecord{
			Loan:        loan,
			Status:      ComputeStatus(loan, now),
			DaysOverdue: loan.DaysOverdue(now),
		})
	}

	return records, nil
}

// HistoryForMember returns the member's full loan history, newest first,
// with statuses derived at the given instant.
func (r *Reporting) HistoryForMember(ctx context.Context, memberID uuid.UUID, now time.Time) (MemberHistory, error) {
	member, findErr := r.store.FindMember(ctx, memberID)
	if findErr != nil {
		return MemberHistory{}, findErr
	}

	filter := BuildLoanFilter().
		ForMember(memberID).
		OrderedBy(OrderByIssuedAtDesc).
		Finalize()

	loans, listErr := r.store.ListLoans(ctx, filter)
	if listErr != nil {
		return MemberHistory{}, listErr
	}

	history := MemberHistory{
		Member: member,
		Loans:  make([]LoanRecord, 0, len(loans)),
	}

	for _, loan := range loans {
		status := ComputeStatus(loan, now)

		if status != LoanStatusReturned {
			history.ActiveLoanCount++
		}

		history.Loans = append(history.Loans, LoanRecord{
			Loan:        loan,
			Status:      status,
			DaysOverdue: loan.DaysOverdue(now),
		})
	}

	return history, nil
}

// TurnoverPerTitle counts loans issued in [from, until) grouped by title,
// busiest title first. Titles without a single loan in the period are not
// listed.
func (r *Reporting) TurnoverPerTitle(ctx context.Context, from time.Time, until time.Time) ([]TitleTurnover, error) {
	filter := BuildLoanFilter().
		IssuedBetween(from, until).
		OrderedBy(OrderByIssuedAtAsc).
		Finalize()

	loans, listErr := r.store.ListLoans(ctx, filter)
	if listErr != nil {
		return nil, listErr
	}

	counts := make(map[uuid.UUID]int)
	for _, loan := range loans {
		counts[loan.TitleID]++
	}

	turnover := make([]TitleTurnover, 0, len(counts))

	for titleID, count := range counts {
		title, findErr := r.store.FindTitle(ctx, titleID)
		if errors.Is(findErr, ErrTitleNotFound) {
			// The ledger is immutable, the catalog is not: a loan may outlive
			// its title. Keep the count and carry just the id.
			turnover = append(turnover, TitleTurnover{Title: BookTitle{ID: titleID}, LoanCount: count})
			continue
		}

		if findErr != nil {
			return nil, findErr
		}

		turnover = append(turnover, TitleTurnover{Title: title, LoanCount: count})
	}

	sort.Slice(turnover, func(i, j int) bool {
		if turnover[i].LoanCount != turnover[j].LoanCount {
			return turnover[i].LoanCount > turnover[j].LoanCount
		}

		return turnover[i].Title.Title < turnover[j].Title.Title
	})

	return turnover, nil
}
