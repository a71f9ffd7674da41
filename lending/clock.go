package lending

import (
	"time"
)

// Clock supplies the current time to the engine. It exists so tests can
// inject a fixed or stepping clock; production code uses SystemClock.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock with the wall clock in UTC.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
