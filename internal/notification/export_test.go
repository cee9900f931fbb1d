package notification

import "time"

// SetClock replaces the store clock for testing.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}
