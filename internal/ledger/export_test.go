package ledger

import "time"

// SetClock overrides the store's time source.
func SetClock(s *Store, now func() time.Time) {
	s.now = now
}
