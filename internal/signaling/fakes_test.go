package signaling

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"chatcall/pkg/utils"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sentEvent struct {
	userID int64
	ev     Event
}

// recordingNotifier keeps every event in send order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) SendToUser(userID int64, ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{userID: userID, ev: ev})
}

func (n *recordingNotifier) For(userID int64) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, e := range n.events {
		if e.userID == userID {
			out = append(out, e.ev)
		}
	}
	return out
}

// Last returns the last event named name sent to userID.
func (n *recordingNotifier) Last(userID int64, name string) (Event, bool) {
	evs := n.For(userID)
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Name == name {
			return evs[i], true
		}
	}
	return Event{}, false
}

func (n *recordingNotifier) Count(userID int64, name string) int {
	c := 0
	for _, ev := range n.For(userID) {
		if ev.Name == name {
			c++
		}
	}
	return c
}

type fakeTrigger struct {
	mu  sync.Mutex
	ids []int64
}

func (f *fakeTrigger) CallEnded(ctx context.Context, callLogID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, callLogID)
	return nil
}

func (f *fakeTrigger) IDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.ids...)
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fakeClock hands out timers that only fire when the test says so.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) utils.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Fire runs every pending timer with the given delay.
func (c *fakeClock) Fire(d time.Duration) int {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.delay == d {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

// Pending counts timers with the given delay that have neither fired nor
// been stopped.
func (c *fakeClock) Pending(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.delay == d {
			n++
		}
	}
	return n
}

// manualNow is a settable clock for CallLog timestamps.
type manualNow struct {
	mu sync.Mutex
	t  time.Time
}

func (m *manualNow) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

func (m *manualNow) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = m.t.Add(d)
}
