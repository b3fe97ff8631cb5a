package transport

import (
	"sync"

	"ipmicore/ipmi"
)

// CommandHandlerFunc handles an incoming command addressed to us (as opposed
// to a response to one of our own outgoing commands).
type CommandHandlerFunc func(addr ipmi.Address, msg ipmi.Message)

// EventHandlerFunc receives every asynchronous event read off the
// character device, in arrival order.
type EventHandlerFunc func(addr ipmi.Address, msg ipmi.Message)

type cmdKey struct {
	netFn ipmi.NetFn
	cmd   uint8
}

// handlerRegistry holds the two fan-out tables a Connection exposes to its
// owner: exact (netfn,cmd) command handlers, and an ordered list of event
// subscribers, dispatched in registration order. Both follow the lock hierarchy named in the data model:
// cmd_handlers_lock and event_handlers_lock are always acquired beneath the
// connections registry's lock and never while holding each other.
type handlerRegistry struct {
	cmdMu    sync.RWMutex
	cmds     map[cmdKey]CommandHandlerFunc
	eventMu  sync.RWMutex
	events   []EventHandlerFunc
	eventIDs []int
	nextID   int
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{cmds: make(map[cmdKey]CommandHandlerFunc)}
}

func (r *handlerRegistry) registerCommand(netFn ipmi.NetFn, cmd uint8, fn CommandHandlerFunc) error {
	key := cmdKey{netFn, cmd}
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()
	if _, exists := r.cmds[key]; exists {
		return ipmi.ErrAlreadyExists
	}
	r.cmds[key] = fn
	return nil
}

func (r *handlerRegistry) deregisterCommand(netFn ipmi.NetFn, cmd uint8) error {
	key := cmdKey{netFn, cmd}
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()
	if _, exists := r.cmds[key]; !exists {
		return ipmi.ErrNotFound
	}
	delete(r.cmds, key)
	return nil
}

func (r *handlerRegistry) dispatchCommand(netFn ipmi.NetFn, cmd uint8, addr ipmi.Address, msg ipmi.Message) bool {
	r.cmdMu.RLock()
	fn, ok := r.cmds[cmdKey{netFn, cmd}]
	r.cmdMu.RUnlock()
	if !ok {
		return false
	}
	fn(addr, msg)
	return true
}

// registerEvent adds an event subscriber and returns a token for
// deregisterEvent plus whether this was the first subscriber (the caller
// must then enable event delivery on the device).
func (r *handlerRegistry) registerEvent(fn EventHandlerFunc) (id int, becameNonEmpty bool) {
	r.eventMu.Lock()
	defer r.eventMu.Unlock()
	id = r.nextID
	r.nextID++
	becameNonEmpty = len(r.events) == 0
	r.events = append(r.events, fn)
	r.eventIDs = append(r.eventIDs, id)
	return id, becameNonEmpty
}

// deregisterEvent removes the subscriber named by id, reporting whether
// this was the last one (the caller must then disable event delivery).
func (r *handlerRegistry) deregisterEvent(id int) (becameEmpty bool, err error) {
	r.eventMu.Lock()
	defer r.eventMu.Unlock()
	for i, got := range r.eventIDs {
		if got == id {
			r.events = append(r.events[:i], r.events[i+1:]...)
			r.eventIDs = append(r.eventIDs[:i], r.eventIDs[i+1:]...)
			return len(r.events) == 0, nil
		}
	}
	return false, ipmi.ErrNotFound
}

// dispatchEvent fans an event out to subscribers in a fixed order captured
// at the start of the call, re-checking each one's presence immediately
// before invoking it — the slice-based equivalent of "read next before
// calling" (§9): self-removal is always safe, and a subscriber removed by
// an earlier handler before its own turn arrives is skipped, matching the
// source's intrusive-list traversal semantics exactly.
func (r *handlerRegistry) dispatchEvent(addr ipmi.Address, msg ipmi.Message) {
	r.eventMu.RLock()
	order := make([]int, len(r.eventIDs))
	copy(order, r.eventIDs)
	r.eventMu.RUnlock()

	for _, id := range order {
		fn, ok := r.lookupEvent(id)
		if !ok {
			continue
		}
		fn(addr, msg)
	}
}

func (r *handlerRegistry) lookupEvent(id int) (EventHandlerFunc, bool) {
	r.eventMu.RLock()
	defer r.eventMu.RUnlock()
	for i, got := range r.eventIDs {
		if got == id {
			return r.events[i], true
		}
	}
	return nil, false
}
