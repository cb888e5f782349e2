package recording

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"chatcall/pkg/utils"
)

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

// FireAll runs every timer that is neither stopped nor fired.
func (c *fakeClock) FireAll() int {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
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

func (c *fakeClock) Active() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fakeEncoder concatenates inputs byte-for-byte instead of running ffmpeg.
type fakeEncoder struct {
	mu      sync.Mutex
	calls   [][]string
	err     error
	empty   bool
	started chan struct{}
	block   chan struct{}
}

func (e *fakeEncoder) Concat(ctx context.Context, inputs []string, output string) error {
	e.mu.Lock()
	e.calls = append(e.calls, append([]string(nil), inputs...))
	started, block := e.started, e.block
	e.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if e.err != nil {
		return e.err
	}
	var b strings.Builder
	if !e.empty {
		for _, in := range inputs {
			data, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			b.Write(data)
		}
	}
	return os.WriteFile(output, []byte(b.String()), 0o644)
}

func (e *fakeEncoder) Calls() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.calls...)
}
