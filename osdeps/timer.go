package osdeps

import "time"

// stdTimer wraps time.Timer. time.Timer.Stop's return value already carries
// exactly the semantics the spec's "cancelled flag" idiom needs: true if the
// timer was stopped before firing, false if it already fired (or was already
// stopped) — so the caller knows ownership passed to the firing callback.
type stdTimer struct {
	t *time.Timer
}

func newStdTimer(d time.Duration, fn func()) *stdTimer {
	return &stdTimer{t: time.AfterFunc(d, fn)}
}

func (s *stdTimer) Cancel() bool {
	return s.t.Stop()
}
