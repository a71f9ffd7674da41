package lending

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"
)

// DefaultLoanPeriod is the loan duration used unless WithLoanPeriod is set.
const DefaultLoanPeriod = 14 * 24 * time.Hour

const (
	logMsgOperation          = "lending operation: "
	logMsgLoanIssued         = "loan issued"
	logMsgLoanReturned       = "loan returned"
	logMsgLoanRenewed        = "loan renewed"
	logMsgCommandRejected    = "command rejected"
	logMsgInvariantViolation = "availability invariant violated"
	logAttrError             = "error"
	logAttrCommandType       = "command_type"
	logAttrLoanID            = "loan_id"
	logAttrTitleID           = "title_id"
	logAttrMemberID          = "member_id"
	logAttrDueAt             = "due_at"
	logAttrDurationMS        = "duration_ms"
)

// Engine orchestrates the lending lifecycle. Every mutating operation
// executes as a single atomic transaction against the backing Store and
// either commits or fails fast with a typed error; no partial state is ever
// observable. The engine holds no locks of its own - serialization of
// conflicting operations is the store's responsibility.
type Engine struct {
	store            Store
	clock            Clock
	loanPeriod       time.Duration
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// Option defines a functional option for configuring an Engine.
type Option func(*Engine) error

// WithLoanPeriod sets the loan duration added to the issue time to compute
// the due date.
func WithLoanPeriod(period time.Duration) Option {
	return func(e *Engine) error {
		if period <= 0 {
			return ErrInvalidLoanPeriod
		}

		e.loanPeriod = period

		return nil
	}
}

// WithClock sets the clock supplying "now" to all operations.
func WithClock(clock Clock) Option {
	return func(e *Engine) error {
		if clock == nil {
			return ErrNilClock
		}

		e.clock = clock

		return nil
	}
}

// WithLogger sets the logger for the Engine.
//
// Debug level: per-operation timing (development use)
// Info level: committed transitions and rejected commands (production-safe)
// Error level: invariant violations and store failures.
func WithLogger(logger Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Engine. The
// contextual logger receives the operation context, enabling automatic
// trace/span correlation when tracing is enabled.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine. The collector
// receives operation durations, commit/rejection counters, and invariant
// violation counters.
func WithMetrics(collector MetricsCollector) Option {
	return func(e *Engine) error {
		e.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine. The collector
// receives one span per engine operation including error status.
func WithTracing(collector TracingCollector) Option {
	return func(e *Engine) error {
		e.tracingCollector = collector
		return nil
	}
}

// NewEngine creates an Engine on top of the given store with optional
// configuration.
func NewEngine(store Store, options ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	engine := &Engine{
		store:      store,
		clock:      SystemClock{},
		loanPeriod: DefaultLoanPeriod,
	}

	for _, option := range options {
		if err := option(engine); err != nil {
			return nil, err
		}
	}

	return engine, nil
}

// LoanPeriod returns the configured loan duration.
func (e *Engine) LoanPeriod() time.Duration {
	return e.loanPeriod
}

// FindLoan reads a loan record outside any transaction. Combine with
// ComputeStatus for a point-in-time status.
func (e *Engine) FindLoan(ctx context.Context, loanID uuid.UUID) (Loan, error) {
	return e.store.FindLoan(ctx, loanID)
}

// Issue lends one copy of a title to a member.
//
// Preconditions: the member exists and is active, the title exists with at
// least one available copy, and the member has no open loan for this exact
// title. On success the availability counter is decremented and a new open
// loan is inserted, atomically.
//
// Fails with ErrMemberNotFound, ErrTitleNotFound, ErrMemberSuspended,
// ErrNoCopiesAvailable or ErrDuplicateActiveLoan. When two Issue calls race
// for the last copy, exactly one succeeds and the loser receives
// ErrNoCopiesAvailable - never a negative counter.
func (e *Engine) Issue(ctx context.Context, command IssueCommand) (Loan, error) {
	now := e.clock.Now()

	var loan Loan

	op := func(tx TxStore) error {
		member, findMemberErr := tx.FindMember(ctx, command.MemberID)
		if findMemberErr != nil {
			return findMemberErr
		}

		if !member.MayBorrow() {
			return ErrMemberSuspended
		}

		title, findTitleErr := tx.FindTitle(ctx, command.TitleID)
		if findTitleErr != nil {
			return findTitleErr
		}

		if !title.HasAvailableCopy() {
			return ErrNoCopiesAvailable
		}

		_, findOpenErr := tx.FindOpenLoan(ctx, command.MemberID, command.TitleID)
		if findOpenErr == nil {
			return ErrDuplicateActiveLoan
		}

		if !errors.Is(findOpenErr, ErrLoanNotFound) {
			return findOpenErr
		}

		if adjustErr := tx.AdjustAvailability(ctx, command.TitleID, -1); adjustErr != nil {
			return adjustErr
		}

		loan = Loan{
			ID:       uuid.New(),
			TitleID:  command.TitleID,
			MemberID: command.MemberID,
			IssuedAt: now,
			DueAt:    now.Add(e.loanPeriod),
		}

		return tx.InsertLoan(ctx, loan)
	}

	keys := KeysFor(command.TitleID, command.MemberID)

	if err := e.executeCommand(ctx, command.CommandType(), keys, op); err != nil {
		return Loan{}, err
	}

	e.logOperation(ctx, logMsgLoanIssued,
		logAttrLoanID, loan.ID.String(),
		logAttrTitleID, loan.TitleID.String(),
		logAttrMemberID, loan.MemberID.String(),
		logAttrDueAt, loan.DueAt,
	)

	return loan, nil
}

// Return closes an open loan: sets ReturnedAt and increments the title's
// availability counter, atomically. A suspended member may still return.
//
// Fails with ErrLoanNotFound or ErrLoanAlreadyReturned. An increment that
// would push the counter past TotalCopies is a fatal ErrInvariantViolation
// and aborts the transaction.
func (e *Engine) Return(ctx context.Context, command ReturnCommand) (Loan, error) {
	now := e.clock.Now()

	// Resolve the loan outside the transaction to learn the affected title,
	// then re-read and validate under the transaction's isolation.
	resolved, resolveErr := e.store.FindLoan(ctx, command.LoanID)
	if resolveErr != nil {
		return Loan{}, e.observeRejection(ctx, command.CommandType(), resolveErr)
	}

	var loan Loan

	op := func(tx TxStore) error {
		current, findErr := tx.FindLoan(ctx, command.LoanID)
		if findErr != nil {
			return findErr
		}

		if !current.IsOpen() {
			return ErrLoanAlreadyReturned
		}

		if markErr := tx.MarkReturned(ctx, command.LoanID, now); markErr != nil {
			return markErr
		}

		if adjustErr := tx.AdjustAvailability(ctx, current.TitleID, +1); adjustErr != nil {
			return adjustErr
		}

		loan = current
		loan.ReturnedAt = &now

		return nil
	}

	keys := KeysFor(resolved.TitleID, command.LoanID)

	if err := e.executeCommand(ctx, command.CommandType(), keys, op); err != nil {
		return Loan{}, err
	}

	e.logOperation(ctx, logMsgLoanReturned,
		logAttrLoanID, loan.ID.String(),
		logAttrTitleID, loan.TitleID.String(),
		logAttrMemberID, loan.MemberID.String(),
	)

	return loan, nil
}

// Renew extends the due date of an open loan to max(dueAt, now) + loanPeriod.
// Renewal is refused once a loan has crossed its due date, to discourage
// indefinite overdue extension, and while the member is suspended.
//
// Fails with ErrLoanNotFound, ErrLoanAlreadyReturned, ErrLoanOverdue or
// ErrMemberSuspended.
func (e *Engine) Renew(ctx context.Context, command RenewCommand) (Loan, error) {
	now := e.clock.Now()

	resolved, resolveErr := e.store.FindLoan(ctx, command.LoanID)
	if resolveErr != nil {
		return Loan{}, e.observeRejection(ctx, command.CommandType(), resolveErr)
	}

	var loan Loan

	op := func(tx TxStore) error {
		current, findErr := tx.FindLoan(ctx, command.LoanID)
		if findErr != nil {
			return findErr
		}

		switch ComputeStatus(current, now) {
		case LoanStatusReturned:
			return ErrLoanAlreadyReturned
		case LoanStatusOverdue:
			return ErrLoanOverdue
		case LoanStatusOpen:
			// renewable
		}

		member, findMemberErr := tx.FindMember(ctx, current.MemberID)
		if findMemberErr != nil {
			return findMemberErr
		}

		if !member.MayBorrow() {
			return ErrMemberSuspended
		}

		newDueAt := current.DueAt
		if now.After(newDueAt) {
			newDueAt = now
		}
		newDueAt = newDueAt.Add(e.loanPeriod)

		if extendErr := tx.ExtendDue(ctx, command.LoanID, newDueAt); extendErr != nil {
			return extendErr
		}

		loan = current
		loan.DueAt = newDueAt

		return nil
	}

	keys := KeysFor(command.LoanID, resolved.MemberID)

	if err := e.executeCommand(ctx, command.CommandType(), keys, op); err != nil {
		return Loan{}, err
	}

	e.logOperation(ctx, logMsgLoanRenewed,
		logAttrLoanID, loan.ID.String(),
		logAttrDueAt, loan.DueAt,
	)

	return loan, nil
}

// ScanOverdue produces the loans whose status derives to Overdue at the
// given instant, ordered by due date ascending (most overdue first). The
// sequence is read-only and restartable: each iteration re-queries committed
// ledger state and has no side effects.
func (e *Engine) ScanOverdue(ctx context.Context, now time.Time) iter.Seq2[Loan, error] {
	filter := BuildLoanFilter().
		OpenOnly().
		DueBefore(now).
		OrderedBy(OrderByDueAtAsc).
		Finalize()

	return func(yield func(Loan, error) bool) {
		loans, err := e.store.ListLoans(ctx, filter)
		if err != nil {
			yield(Loan{}, err)
			return
		}

		for _, loan := range loans {
			if !yield(loan, nil) {
				return
			}
		}
	}
}

// executeCommand runs op inside a store transaction wrapped with tracing,
// metrics and logging.
func (e *Engine) executeCommand(ctx context.Context, commandType string, keys TxKeys, op func(tx TxStore) error) error {
	spanCtx, span := e.startCommandSpan(ctx, commandType)
	start := time.Now()

	err := e.store.WithinTx(spanCtx, keys, op)

	duration := time.Since(start)
	e.recordCommandMetrics(spanCtx, commandType, duration, err)

	if err != nil {
		e.finishCommandSpanError(span, err)
		e.logCommandFailure(spanCtx, commandType, err)

		return err
	}

	e.finishCommandSpanSuccess(span, duration)
	e.logDebug(spanCtx, logMsgOperation+commandType, logAttrDurationMS, durationToMilliseconds(duration))

	return nil
}
