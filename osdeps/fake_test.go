package osdeps

import (
	"testing"
	"time"
)

func TestFakePollerFireInvokesHandler(t *testing.T) {
	p := NewFakePoller()
	called := false
	p.AddFD(3, func() { called = true })
	p.Fire(3)
	if !called {
		t.Fatal("Fire did not invoke the registered handler")
	}
}

func TestFakePollerRemoveFDStopsDelivery(t *testing.T) {
	p := NewFakePoller()
	called := false
	p.AddFD(3, func() { called = true })
	p.RemoveFD(3)
	p.Fire(3)
	if called {
		t.Fatal("Fire invoked a handler after RemoveFD")
	}
}

func TestFakePollerTimerFiresAfterAdvance(t *testing.T) {
	p := NewFakePoller()
	fired := false
	p.AddTimer(time.Second, func() { fired = true })
	p.AdvanceTimers(500 * time.Millisecond)
	if fired {
		t.Fatal("timer fired before its deadline")
	}
	p.AdvanceTimers(600 * time.Millisecond)
	if !fired {
		t.Fatal("timer did not fire once its deadline passed")
	}
}

func TestFakeTimerCancelBeforeFire(t *testing.T) {
	p := NewFakePoller()
	fired := false
	timer := p.AddTimer(time.Second, func() { fired = true })
	if ok := timer.Cancel(); !ok {
		t.Fatal("Cancel before deadline should return true")
	}
	p.AdvanceTimers(2 * time.Second)
	if fired {
		t.Fatal("cancelled timer must not fire")
	}
}

func TestFakeTimerCancelAfterFireReturnsFalse(t *testing.T) {
	p := NewFakePoller()
	timer := p.AddTimer(time.Second, func() {})
	p.AdvanceTimers(2 * time.Second)
	if ok := timer.Cancel(); ok {
		t.Fatal("Cancel after the timer already fired must return false")
	}
}
