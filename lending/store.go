package lending

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
)

// TxKeys lists the record identities a transaction serializes on. Backends
// that lock in-process (memorystore) use them to pick lock shards; backends
// with row-level locking (postgresstore) may ignore them. The keys are
// sanitized: nil ids removed, sorted, deduplicated.
type TxKeys []string

// KeysFor builds sanitized TxKeys from record ids.
func KeysFor(ids ...uuid.UUID) TxKeys {
	keys := make(TxKeys, 0, len(ids))

	for _, id := range ids {
		if id != uuid.Nil {
			keys = append(keys, id.String())
		}
	}

	slices.Sort(keys)
	keys = slices.Compact(keys)
	keys = slices.Clip(keys)

	return keys
}

// Store is the narrow persistence contract the engine consumes. It combines
// read-only access for validation and reporting with a transactional
// boundary for mutations.
//
// WithinTx runs fn against a transaction-scoped TxStore. Everything fn does
// commits atomically or not at all; when fn returns an error the transaction
// rolls back in full and the error is propagated unchanged. The store's
// isolation must guarantee that the read-validate-write sequence for the
// records named by keys is serialized, while operations on unrelated records
// proceed concurrently.
type Store interface {
	Reader

	WithinTx(ctx context.Context, keys TxKeys, fn func(tx TxStore) error) error
}

// Reader provides read-only access to committed state. Reads never block
// mutations and never observe partially-committed transactions.
type Reader interface {
	FindTitle(ctx context.Context, titleID uuid.UUID) (BookTitle, error)
	FindMember(ctx context.Context, memberID uuid.UUID) (Member, error)
	FindLoan(ctx context.Context, loanID uuid.UUID) (Loan, error)
	ListLoans(ctx context.Context, filter LoanFilter) ([]Loan, error)
}

// TxStore is the transaction-scoped view of the store. Reads through a
// TxStore observe the transaction's own uncommitted writes and hold whatever
// locks the backend needs to serialize conflicting transactions.
//
// The guarded mutations double as invariant checks: a mutation whose guard
// matches no record reports the reason as a typed error instead of silently
// doing nothing.
type TxStore interface {
	FindTitle(ctx context.Context, titleID uuid.UUID) (BookTitle, error)
	FindMember(ctx context.Context, memberID uuid.UUID) (Member, error)
	FindLoan(ctx context.Context, loanID uuid.UUID) (Loan, error)

	// FindOpenLoan returns the member's open loan for the title,
	// or ErrLoanNotFound when there is none.
	FindOpenLoan(ctx context.Context, memberID uuid.UUID, titleID uuid.UUID) (Loan, error)

	// AdjustAvailability applies delta to the title's available-copies
	// counter, guarded to [0, TotalCopies]. A failed decrement reports
	// ErrNoCopiesAvailable (a racing transaction took the last copy);
	// a failed increment reports ErrInvariantViolation (the counter would
	// exceed TotalCopies, which indicates a bug, not a user error).
	AdjustAvailability(ctx context.Context, titleID uuid.UUID, delta int) error

	// InsertLoan appends a new loan record to the ledger.
	InsertLoan(ctx context.Context, loan Loan) error

	// MarkReturned sets ReturnedAt on an open loan, guarded by
	// "not yet returned"; a failed guard reports ErrLoanAlreadyReturned.
	MarkReturned(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) error

	// ExtendDue moves the due date of an open loan, guarded by
	// "not yet returned"; a failed guard reports ErrLoanAlreadyReturned.
	ExtendDue(ctx context.Context, loanID uuid.UUID, newDueAt time.Time) error
}
