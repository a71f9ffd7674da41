package lending

import (
	"errors"
)

// Not-found errors: the caller supplied an id that does not exist.
var ErrMemberNotFound = errors.New("member not found")
var ErrTitleNotFound = errors.New("book title not found")
var ErrLoanNotFound = errors.New("loan not found")

// Precondition errors: expected business-rule rejections, surfaced to the
// caller as user-facing messages and never retried automatically.
var ErrMemberSuspended = errors.New("member is suspended")
var ErrNoCopiesAvailable = errors.New("no copies available")
var ErrDuplicateActiveLoan = errors.New("member already has an open loan for this title")
var ErrLoanAlreadyReturned = errors.New("loan has already been returned")
var ErrLoanOverdue = errors.New("loan is overdue and cannot be renewed")

// ErrInvariantViolation indicates store/engine disagreement, e.g. an
// availability counter that would leave [0, totalCopies]. It is fatal and
// aborts the surrounding transaction.
var ErrInvariantViolation = errors.New("availability invariant violated")

// ErrStoreUnavailable wraps infrastructure failures of the backing store.
// It is retryable, but retry policy is a caller concern.
var ErrStoreUnavailable = errors.New("backing store unavailable")

// Configuration errors.
var ErrNilStore = errors.New("store must not be nil")
var ErrNilClock = errors.New("clock must not be nil")
var ErrInvalidLoanPeriod = errors.New("loan period must be positive")

// IsNotFound reports whether err is one of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrTitleNotFound) ||
		errors.Is(err, ErrLoanNotFound)
}

// IsPreconditionFailed reports whether err is an expected business-rule
// rejection.
func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrMemberSuspended) ||
		errors.Is(err, ErrNoCopiesAvailable) ||
		errors.Is(err, ErrDuplicateActiveLoan) ||
		errors.Is(err, ErrLoanAlreadyReturned) ||
		errors.Is(err, ErrLoanOverdue)
}
