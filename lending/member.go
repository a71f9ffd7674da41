package lending

import (
	"github.com/google/uuid"
)

// Standing is a member's eligibility state gating new loans.
type Standing string

const (
	StandingActive    Standing = "ACTIVE"
	StandingSuspended Standing = "SUSPENDED"
)

// Member represents a library member. Suspension and reactivation are
// membership management concerns; this core only reads the standing.
type Member struct {
	ID       uuid.UUID
	Name     string
	Standing Standing
}

// MayBorrow reports whether the member is eligible to initiate new loans.
// A suspended member may still return outstanding loans.
func (m Member) MayBorrow() bool {
	return m.Standing == StandingActive
}
