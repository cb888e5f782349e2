package recording

import (
	"sync"
	"testing"
	"time"
)

func TestScheduler_DebounceRunsOnce(t *testing.T) {
	clock := &fakeClock{}
	var mu sync.Mutex
	fired := map[int64]int{}
	s := NewScheduler(func(id int64) {
		mu.Lock()
		fired[id]++
		mu.Unlock()
	}).WithAfterFunc(clock.AfterFunc)

	s.Schedule(7, CallEndDelay)
	s.Schedule(7, UploadDelay)
	s.Schedule(7, FinalizeDelay)
	s.Schedule(8, CallEndDelay)

	active := clock.Active()
	if len(active) != 2 {
		t.Fatalf("expected one pending timer per id, got %d", len(active))
	}
	if !s.Pending(7) {
		t.Fatalf("expected pending run for 7")
	}

	clock.FireAll()
	if fired[7] != 1 || fired[8] != 1 {
		t.Fatalf("expected exactly one run per id, got %v", fired)
	}
	if s.Pending(7) {
		t.Fatalf("expected no pending run after fire")
	}
}

func TestScheduler_LatestDelayWins(t *testing.T) {
	clock := &fakeClock{}
	s := NewScheduler(func(int64) {}).WithAfterFunc(clock.AfterFunc)
	s.Schedule(1, CallEndDelay)
	s.Schedule(1, FinalizeDelay)
	active := clock.Active()
	if len(active) != 1 || active[0].delay != FinalizeDelay {
		t.Fatalf("expected only the finalize delay pending, got %+v", active)
	}
}

func TestScheduler_StaleTimerIgnored(t *testing.T) {
	clock := &fakeClock{}
	runs := 0
	s := NewScheduler(func(int64) { runs++ }).WithAfterFunc(clock.AfterFunc)

	s.Schedule(1, time.Second)
	stale := clock.timers[0]
	s.Schedule(1, time.Second)

	// Simulate the replaced timer firing after Stop lost the race.
	stale.f()
	if runs != 0 {
		t.Fatalf("stale timer must not run, got %d runs", runs)
	}
	clock.FireAll()
	if runs != 1 {
		t.Fatalf("expected one run, got %d", runs)
	}
}

func TestScheduler_StopCancelsPending(t *testing.T) {
	clock := &fakeClock{}
	runs := 0
	s := NewScheduler(func(int64) { runs++ }).WithAfterFunc(clock.AfterFunc)
	s.Schedule(1, time.Second)
	s.Schedule(2, time.Second)
	s.Stop()
	s.Schedule(3, time.Second)

	if n := clock.FireAll(); n != 0 {
		t.Fatalf("expected no active timers after stop, got %d", n)
	}
	if runs != 0 {
		t.Fatalf("expected no runs after stop")
	}
}
