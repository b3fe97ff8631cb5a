// Package osdeps is the OS abstraction the spec requires: register a file
// descriptor for readability, schedule a one-shot timer, cancel a timer,
// run one pending event. The transport owns the read/write lock discipline
// built on top of this; osdeps itself only multiplexes fds and timers.
package osdeps

import (
	"context"
	"time"
)

// Timer is a handle to a scheduled one-shot callback.
type Timer interface {
	// Cancel attempts to stop the timer before it fires. It returns false
	// if the timer already fired or is in the process of firing — the
	// caller must then treat the callback as the owner of whatever state
	// it was guarding (the "cancelled flag" idiom in §9 of the spec).
	Cancel() bool
}

// Poller is the minimal OS abstraction every Connection is built on.
// Implementations must be safe for concurrent use: AddFD/RemoveFD/AddTimer
// may be called from a goroutine other than the one driving RunOne, because
// user code is allowed to call into the library before handing control to
// the event loop (§5).
type Poller interface {
	// AddFD registers fd for read-readiness; onReadable is invoked from
	// RunOne when the fd has data available. Only one callback per fd is
	// supported; a second AddFD for the same fd replaces the first.
	AddFD(fd int, onReadable func()) error
	// RemoveFD deregisters fd. Safe to call even if fd was never added.
	RemoveFD(fd int) error
	// AddTimer schedules fn to run once after d elapses.
	AddTimer(d time.Duration, fn func()) Timer
	// RunOne blocks until at least one ready fd's callback has run, or ctx
	// is done. Timers are not serviced here: EpollPoller's timers fire from
	// their own time.AfterFunc goroutines, and FakePoller's only from
	// AdvanceTimers.
	RunOne(ctx context.Context) error
	// Close releases the poller's own resources (e.g. the epoll fd). It
	// does not close any fd registered with AddFD.
	Close() error
}
