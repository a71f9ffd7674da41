package lending

import (
	"github.com/google/uuid"
)

// BookTitle is a catalogued book entry. Physical copies are tracked only in
// aggregate via AvailableCopies, not individually identified.
//
// Invariant, after every committed transition:
//
//	0 <= AvailableCopies <= TotalCopies
//	AvailableCopies == TotalCopies - count(open loans for this title)
//
// The metadata fields are maintained by catalog management; the engine only
// ever mutates the availability counter.
type BookTitle struct {
	ID              uuid.UUID
	Title           string
	Author          string
	ISBN            string
	Genre           string
	PublicationYear int
	TotalCopies     int
	AvailableCopies int
}

// HasAvailableCopy reports whether at least one copy can be issued.
func (t BookTitle) HasAvailableCopy() bool {
	return t.AvailableCopies > 0
}

// AvailabilityWithinBounds reports whether applying delta keeps the
// availability counter within [0, TotalCopies]. Backends use it to guard
// AdjustAvailability.
func (t BookTitle) AvailabilityWithinBounds(delta int) bool {
	adjusted := t.AvailableCopies + delta
	return adjusted >= 0 && adjusted <= t.TotalCopies
}
