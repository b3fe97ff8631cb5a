package osdeps

import (
	"context"
	"sync"
	"time"
)

// FakePoller is a deterministic, single-threaded Poller for tests. It never
// actually sleeps or polls a kernel fd: tests drive it explicitly by calling
// Fire (for an fd becoming readable) or AdvanceTimers (to run due timers).
// Grounded on the corpus's habit of hand-rolled fakes rather than mocking
// libraries (the teacher's discovery.Scanner is exercised against a real
// httptest server in the same spirit: a minimal stand-in, not a mock
// framework).
type FakePoller struct {
	mu       sync.Mutex
	handlers map[int]func()
	timers   []*fakeTimer
	now      time.Time
}

type fakeTimer struct {
	due       time.Time
	fn        func()
	cancelled bool
	fired     bool
}

func (f *fakeTimer) Cancel() bool {
	if f.fired {
		return false
	}
	f.cancelled = true
	return true
}

// NewFakePoller returns a ready-to-use FakePoller.
func NewFakePoller() *FakePoller {
	return &FakePoller{handlers: make(map[int]func()), now: time.Now()}
}

func (f *FakePoller) AddFD(fd int, onReadable func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[fd] = onReadable
	return nil
}

func (f *FakePoller) RemoveFD(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, fd)
	return nil
}

func (f *FakePoller) AddTimer(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{due: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// RunOne is a no-op for the fake: tests call Fire/AdvanceTimers directly
// instead of relying on a background loop.
func (f *FakePoller) RunOne(ctx context.Context) error {
	return ctx.Err()
}

func (f *FakePoller) Close() error { return nil }

// Fire synchronously invokes the handler registered for fd, if any.
func (f *FakePoller) Fire(fd int) {
	f.mu.Lock()
	h := f.handlers[fd]
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

// AdvanceTimers moves the fake clock forward by d and fires, in scheduling
// order, every still-live timer whose deadline has now passed.
func (f *FakePoller) AdvanceTimers(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	var due []*fakeTimer
	for _, t := range f.timers {
		if !t.cancelled && !t.fired && !t.due.After(f.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	f.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}
