// Package slots bounds the number of concurrently open read transactions.
package slots

import "sync/atomic"

// Slots is a non-blocking counting limiter. A zero or negative max means
// unlimited, in which case Acquire always succeeds.
type Slots struct {
	max  int64
	used atomic.Int64
}

func New(max int) *Slots {
	return &Slots{max: int64(max)}
}

// Acquire takes a slot, reporting false when none are left. It never blocks.
func (s *Slots) Acquire() bool {
	for {
		n := s.used.Load()
		if s.max > 0 && n >= s.max {
			return false
		}
		if s.used.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release returns a slot taken by Acquire.
func (s *Slots) Release() {
	s.used.Add(-1)
}

// InUse reports the number of held slots.
func (s *Slots) InUse() int {
	return int(s.used.Load())
}
