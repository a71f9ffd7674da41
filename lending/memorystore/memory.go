// Package memorystore provides an in-memory implementation of the lending
// store contracts. It keeps unit tests and lightweight embedding free of a
// database while preserving the transactional semantics: mutations are
// staged per transaction and applied atomically on commit, and conflicting
// transactions are serialized through sharded mutexes keyed on the affected
// record ids.
package memorystore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkleindienst/library-lending-go/lending"
)

// numShards spreads transaction locks over independent mutexes so that
// operations on unrelated titles/members/loans never contend.
const numShards = 64

// Store is an in-memory lending.Store. The zero value is not usable; create
// one with NewStore.
type Store struct {
	mu      sync.RWMutex
	titles  map[uuid.UUID]lending.BookTitle
	members map[uuid.UUID]lending.Member
	loans   map[uuid.UUID]lending.Loan
	shards  [numShards]sync.Mutex
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		titles:  make(map[uuid.UUID]lending.BookTitle),
		members: make(map[uuid.UUID]lending.Member),
		loans:   make(map[uuid.UUID]lending.Loan),
	}
}

// PutTitle creates or replaces a catalog record. Catalog management is
// external to the lending core; this is the seam it plugs into.
func (s *Store) PutTitle(title lending.BookTitle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles[title.ID] = title
}

// PutMember creates or replaces a member record. Membership management
// (suspension, reactivation) is external to the lending core.
func (s *Store) PutMember(member lending.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[member.ID] = member
}

// FindTitle returns the committed catalog record for the id.
func (s *Store) FindTitle(_ context.Context, titleID uuid.UUID) (lending.BookTitle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if title, ok := s.titles[titleID]; ok {
		return title, nil
	}

	return lending.BookTitle{}, lending.ErrTitleNotFound
}

// FindMember returns the committed member record for the id.
func (s *Store) FindMember(_ context.Context, memberID uuid.UUID) (lending.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if member, ok := s.members[memberID]; ok {
		return member, nil
	}

	return lending.Member{}, lending.ErrMemberNotFound
}

// FindLoan returns the committed ledger record for the id.
func (s *Store) FindLoan(_ context.Context, loanID uuid.UUID) (lending.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if loan, ok := s.loans[loanID]; ok {
		return cloneLoan(loan), nil
	}

	return lending.Loan{}, lending.ErrLoanNotFound
}

// ListLoans returns the committed loans matching the filter, ordered and
// limited as requested.
func (s *Store) ListLoans(_ context.Context, filter lending.LoanFilter) ([]lending.Loan, error) {
	s.mu.RLock()

	matching := make([]lending.Loan, 0)
	for _, loan := range s.loans {
		if loanMatchesFilter(loan, filter) {
			matching = append(matching, cloneLoan(loan))
		}
	}

	s.mu.RUnlock()

	sortLoans(matching, filter.Ordering())

	if limit := filter.Limit(); limit > 0 && uint(len(matching)) > limit {
		matching = matching[:limit]
	}

	return matching, nil
}

// WithinTx runs fn against a staged view of the store. The shards for the
// given keys serialize conflicting transactions; the staged writes become
// visible to readers only at commit, all at once.
func (s *Store) WithinTx(ctx context.Context, keys lending.TxKeys, fn func(tx lending.TxStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.lockShards(keys)
	defer unlock()

	tx := &txView{
		store:  s,
		titles: make(map[uuid.UUID]lending.BookTitle),
		loans:  make(map[uuid.UUID]lending.Loan),
	}

	if err := fn(tx); err != nil {
		return err // staged writes are discarded, nothing was applied
	}

	s.mu.Lock()
	for id, title := range tx.titles {
		s.titles[id] = title
	}
	for id, loan := range tx.loans {
		s.loans[id] = loan
	}
	s.mu.Unlock()

	return nil
}

// lockShards acquires the shard mutexes for the keys in deterministic order
// and returns the matching unlock function.
func (s *Store) lockShards(keys lending.TxKeys) func() {
	indexes := make([]int, 0, len(keys))

	for _, key := range keys {
		indexes = append(indexes, int(fnvHash(key)%numShards))
	}

	sort.Ints(indexes)

	locked := make([]int, 0, len(indexes))
	previous := -1

	for _, index := range indexes {
		if index == previous {
			continue // same shard, already held
		}

		s.shards[index].Lock()
		locked = append(locked, index)
		previous = index
	}

	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			s.shards[locked[i]].Unlock()
		}
	}
}

// fnvHash is FNV-1a over the key string.
func fnvHash(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)

	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}

	return h
}

/***** transaction view *****/

// txView implements lending.TxStore. Reads consult the staged writes first
// and fall back to committed state; mutations only touch the staged maps.
type txView struct {
	store  *Store
	titles map[uuid.UUID]lending.BookTitle
	loans  map[uuid.UUID]lending.Loan
}

func (tx *txView) FindTitle(ctx context.Context, titleID uuid.UUID) (lending.BookTitle, error) {
	if title, ok := tx.titles[titleID]; ok {
		return title, nil
	}

	return tx.store.FindTitle(ctx, titleID)
}

func (tx *txView) FindMember(ctx context.Context, memberID uuid.UUID) (lending.Member, error) {
	return tx.store.FindMember(ctx, memberID)
}

func (tx *txView) FindLoan(ctx context.Context, loanID uuid.UUID) (lending.Loan, error) {
	if loan, ok := tx.loans[loanID]; ok {
		return cloneLoan(loan), nil
	}

	return tx.store.FindLoan(ctx, loanID)
}

func (tx *txView) FindOpenLoan(_ context.Context, memberID uuid.UUID, titleID uuid.UUID) (lending.Loan, error) {
	for _, loan := range tx.loans {
		if loan.MemberID == memberID && loan.TitleID == titleID && loan.IsOpen() {
			return cloneLoan(loan), nil
		}
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	for id, loan := range tx.store.loans {
		if _, staged := tx.loans[id]; staged {
			continue // the staged version was already considered
		}

		if loan.MemberID == memberID && loan.TitleID == titleID && loan.IsOpen() {
			return cloneLoan(loan), nil
		}
	}

	return lending.Loan{}, lending.ErrLoanNotFound
}

func (tx *txView) AdjustAvailability(ctx context.Context, titleID uuid.UUID, delta int) error {
	title, err := tx.FindTitle(ctx, titleID)
	if err != nil {
		return err
	}

	if !title.AvailabilityWithinBounds(delta) {
		if delta < 0 {
			return lending.ErrNoCopiesAvailable
		}

		return lending.ErrInvariantViolation
	}

	title.AvailableCopies += delta
	tx.titles[titleID] = title

	return nil
}

func (tx *txView) InsertLoan(_ context.Context, loan lending.Loan) error {
	tx.loans[loan.ID] = cloneLoan(loan)

	return nil
}

func (tx *txView) MarkReturned(ctx context.Context, loanID uuid.UUID, returnedAt time.Time) error {
	loan, err := tx.FindLoan(ctx, loanID)
	if err != nil {
		return err
	}

	if !loan.IsOpen() {
		return lending.ErrLoanAlreadyReturned
	}

	if returnedAt.Before(loan.IssuedAt) {
		return lending.ErrInvariantViolation
	}

	loan.ReturnedAt = &returnedAt
	tx.loans[loanID] = loan

	return nil
}

func (tx *txView) ExtendDue(ctx context.Context, loanID uuid.UUID, newDueAt time.Time) error {
	loan, err := tx.FindLoan(ctx, loanID)
	if err != nil {
		return err
	}

	if !loan.IsOpen() {
		return lending.ErrLoanAlreadyReturned
	}

	loan.DueAt = newDueAt
	tx.loans[loanID] = loan

	return nil
}

/***** filter matching and ordering *****/

func loanMatchesFilter(loan lending.Loan, filter lending.LoanFilter) bool {
	if memberID, ok := filter.MemberID(); ok && loan.MemberID != memberID {
		return false
	}

	if titleID, ok := filter.TitleID(); ok && loan.TitleID != titleID {
		return false
	}

	if filter.OpenOnly() && !loan.IsOpen() {
		return false
	}

	if cutoff, ok := filter.DueBefore(); ok && !loan.DueAt.Before(cutoff) {
		return false
	}

	if from, ok := filter.IssuedFrom(); ok && loan.IssuedAt.Before(from) {
		return false
	}

	if until, ok := filter.IssuedUntil(); ok && !loan.IssuedAt.Before(until) {
		return false
	}

	return true
}

func sortLoans(loans []lending.Loan, ordering lending.LoanOrdering) {
	switch ordering {
	case lending.OrderByIssuedAtAsc:
		sort.Slice(loans, func(i, j int) bool { return loans[i].IssuedAt.Before(loans[j].IssuedAt) })
	case lending.OrderByIssuedAtDesc:
		sort.Slice(loans, func(i, j int) bool { return loans[i].IssuedAt.After(loans[j].IssuedAt) })
	case lending.OrderByDueAtAsc:
		sort.Slice(loans, func(i, j int) bool { return loans[i].DueAt.Before(loans[j].DueAt) })
	}
}

func cloneLoan(loan lending.Loan) lending.Loan {
	if loan.ReturnedAt != nil {
		returnedAt := *loan.ReturnedAt
		loan.ReturnedAt = &returnedAt
	}

	return loan
}

var _ lending.Store = (*Store)(nil)
var _ lending.TxStore = (*txView)(nil)
