package recording

import (
	"sync"
	"time"

	"chatcall/pkg/utils"
)

// Scheduler debounces merge runs per call id. Scheduling an id replaces any
// pending timer for it, so only the latest delay is honored.
type Scheduler struct {
	mu        sync.Mutex
	pending   map[int64]pendingRun
	seq       uint64
	stopped   bool
	afterFunc utils.AfterFunc
	fire      func(callID int64)
}

type pendingRun struct {
	timer utils.Timer
	seq   uint64
}

func NewScheduler(fire func(callID int64)) *Scheduler {
	return &Scheduler{
		pending:   map[int64]pendingRun{},
		afterFunc: utils.RealAfterFunc,
		fire:      fire,
	}
}

// WithAfterFunc swaps the timer source; used by tests.
func (s *Scheduler) WithAfterFunc(f utils.AfterFunc) *Scheduler {
	s.afterFunc = f
	return s
}

func (s *Scheduler) Schedule(callID int64, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if prev, ok := s.pending[callID]; ok {
		prev.timer.Stop()
	}
	s.seq++
	seq := s.seq
	t := s.afterFunc(delay, func() { s.onFire(callID, seq) })
	s.pending[callID] = pendingRun{timer: t, seq: seq}
}

// onFire runs the callback only if this timer is still the latest for the id.
// A replaced timer may fire anyway when Stop lost the race.
func (s *Scheduler) onFire(callID int64, seq uint64) {
	s.mu.Lock()
	cur, ok := s.pending[callID]
	if !ok || cur.seq != seq || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.pending, callID)
	s.mu.Unlock()

	s.fire(callID)
}

// Pending reports whether a run is scheduled for the id.
func (s *Scheduler) Pending(callID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[callID]
	return ok
}

// Stop cancels every pending timer. Later Schedule calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
	}
}
