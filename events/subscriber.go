package events

import (
	"sync"

	"ipmicore/ipmi"
)

// subscriberList is the BMC-level system-event fan-out list, iterated by
// index snapshot rather than live range so a handler may deregister itself
// or another subscriber mid-dispatch without corrupting iteration (§4.4,
// §9: "read next before calling").
type subscriberList struct {
	mu     sync.RWMutex
	fns    []SystemEventHandler
	ids    []int
	nextID int
}

func newSubscriberList() *subscriberList {
	return &subscriberList{}
}

func (s *subscriberList) add(fn SystemEventHandler) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.fns = append(s.fns, fn)
	s.ids = append(s.ids, id)
	return id
}

func (s *subscriberList) remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, got := range s.ids {
		if got == id {
			s.fns = append(s.fns[:i], s.fns[i+1:]...)
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return nil
		}
	}
	return ipmi.ErrNotFound
}

// dispatch walks subscribers in a fixed order fixed at the start of the
// call, but re-checks each one's presence immediately before invoking it —
// the slice-based equivalent of "read next before calling": self-removal
// is always safe, and a subscriber removed by an earlier handler before
// its own turn arrives is skipped rather than invoked, matching the
// source's intrusive-list traversal semantics exactly.
func (s *subscriberList) dispatch(addr ipmi.Address, msg ipmi.Message) {
	s.mu.RLock()
	order := make([]int, len(s.ids))
	copy(order, s.ids)
	s.mu.RUnlock()

	for _, id := range order {
		fn, ok := s.lookup(id)
		if !ok {
			continue
		}
		fn(addr, msg)
	}
}

func (s *subscriberList) lookup(id int) (SystemEventHandler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, got := range s.ids {
		if got == id {
			return s.fns[i], true
		}
	}
	return nil, false
}
