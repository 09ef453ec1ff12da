package onecollector

import (
	"sync"
	"sync/atomic"
	"time"
)

// reloadState tracks reload outcomes that must persist across transport swaps.
type reloadState struct {
	applied atomic.Int64

	mu         sync.Mutex
	lastReload time.Time
	lastErr    string
}

func (s *reloadState) recordApplied(at time.Time) {
	s.applied.Add(1)

	s.mu.Lock()
	s.lastReload = at
	s.lastErr = ""
	s.mu.Unlock()
}

func (s *reloadState) recordRejected(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

func (s *reloadState) snapshot() (count int64, last time.Time, lastErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applied.Load(), s.lastReload, s.lastErr
}
