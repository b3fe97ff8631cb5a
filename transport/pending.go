package transport

import (
	"sync"
	"time"

	"ipmicore/ipmi"
	"ipmicore/osdeps"
)

// ResponseFunc receives the outcome of one pending command: a response
// message with err nil; on timeout, err set to ipmi.ErrTimeout and msg a
// synthesized response carrying ipmi.CCTimeout; or, when the connection is
// closed first, err wrapping ipmi.ErrIO.
type ResponseFunc func(msg ipmi.Message, err error)

// pendingSlot is one entry in the pending-command table. Slots are reused
// across commands; generation distinguishes a live occupant from a stale
// token referring to an already-completed or cancelled one, so a token is
// never trusted by itself: lookup bounds-checks the slot index it names and
// compares the generation before touching the occupant (§9 of the spec:
// never resolve a correlation token by pointer/index dereference alone).
type pendingSlot struct {
	inUse      bool
	generation uint32
	addr       ipmi.Address
	request    ipmi.Message
	respond    ResponseFunc
	timer      osdeps.Timer
}

// pendingTable is the generation-indexed slot registry backing one
// Connection's outstanding commands. The kernel-facing correlation token is
// slotIndex<<32 | generation; a response or timeout callback indexes the
// named slot after a bounds check and compares its generation before
// touching the occupant, so a slot freed and reused between send and
// callback never resolves to the wrong command.
type pendingTable struct {
	mu    sync.Mutex
	slots []pendingSlot
	free  []int
}

func newPendingTable() *pendingTable {
	return &pendingTable{}
}

func tokenOf(slot int, gen uint32) int64 {
	return int64(uint64(slot)<<32 | uint64(gen))
}

func splitToken(token int64) (slot int, gen uint32) {
	u := uint64(token)
	return int(u >> 32), uint32(u)
}

// add reserves a slot for a new pending command and returns its token. The
// caller still owns wiring up the timer; add exists only to hand back a
// stable token the timer callback can close over.
func (t *pendingTable) add(addr ipmi.Address, req ipmi.Message, respond ResponseFunc) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx int
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = len(t.slots)
		t.slots = append(t.slots, pendingSlot{})
	}

	gen := t.slots[idx].generation + 1
	t.slots[idx] = pendingSlot{
		inUse:      true,
		generation: gen,
		addr:       addr,
		request:    req.Clone(),
		respond:    respond,
	}
	return tokenOf(idx, gen)
}

// setTimer attaches the deadline timer to the slot named by token, if it is
// still the live occupant.
func (t *pendingTable) setTimer(token int64, timer osdeps.Timer) {
	slot, gen := splitToken(token)
	t.mu.Lock()
	defer t.mu.Unlock()
	if slot < 0 || slot >= len(t.slots) {
		return
	}
	s := &t.slots[slot]
	if !s.inUse || s.generation != gen {
		return
	}
	s.timer = timer
}

// resolve removes and returns the occupant of token, if it is still live. A
// second call with the same token (e.g. a timeout racing a late response)
// returns ok=false.
func (t *pendingTable) resolve(token int64) (pendingSlot, bool) {
	slot, gen := splitToken(token)
	t.mu.Lock()
	defer t.mu.Unlock()
	if slot < 0 || slot >= len(t.slots) {
		return pendingSlot{}, false
	}
	s := &t.slots[slot]
	if !s.inUse || s.generation != gen {
		return pendingSlot{}, false
	}
	out := *s
	s.inUse = false
	s.respond = nil
	s.timer = nil
	t.free = append(t.free, slot)
	return out, true
}

// removeIfMatches removes token's slot only if addr agrees with the stored
// request's source, used when a response's source address must agree with
// where the command was sent, not merely the correlation token. Channel and
// slave address must agree for an IPMB source; the broadcast/unicast
// distinction and LUN are not compared, since a reply to a broadcast probe
// legitimately arrives tagged as an ordinary unicast address from whichever
// slave answered.
func (t *pendingTable) removeIfMatches(token int64, addr ipmi.Address) (pendingSlot, bool) {
	slot, gen := splitToken(token)
	t.mu.Lock()
	if slot < 0 || slot >= len(t.slots) {
		t.mu.Unlock()
		return pendingSlot{}, false
	}
	s := &t.slots[slot]
	if !s.inUse || s.generation != gen || !sameSource(s.addr, addr) {
		t.mu.Unlock()
		return pendingSlot{}, false
	}
	out := *s
	s.inUse = false
	s.respond = nil
	s.timer = nil
	t.free = append(t.free, slot)
	t.mu.Unlock()
	return out, true
}

func isIPMBFamily(t ipmi.AddrType) bool {
	return t == ipmi.AddrIPMB || t == ipmi.AddrIPMBBroadcast
}

// sameSource reports whether want (the address a command was sent to) and
// got (the address a response arrived from) name the same device: the same
// channel, and for IPMB sources, the same slave address.
func sameSource(want, got ipmi.Address) bool {
	if want.Channel != got.Channel {
		return false
	}
	wantIPMB, gotIPMB := isIPMBFamily(want.Type), isIPMBFamily(got.Type)
	if wantIPMB != gotIPMB {
		return false
	}
	if !wantIPMB {
		return true
	}
	return want.SlaveAddr == got.SlaveAddr
}

// closeAll cancels every still-live timer and reports every outstanding
// command as failed with err (used by Connection.Close).
func (t *pendingTable) closeAll(err error) {
	t.mu.Lock()
	var live []pendingSlot
	for i := range t.slots {
		s := &t.slots[i]
		if !s.inUse {
			continue
		}
		live = append(live, *s)
		s.inUse = false
		s.respond = nil
		s.timer = nil
	}
	t.free = t.free[:0]
	for i := range t.slots {
		t.free = append(t.free, i)
	}
	t.mu.Unlock()

	for _, s := range live {
		if s.timer != nil {
			s.timer.Cancel()
		}
		if s.respond != nil {
			s.respond(ipmi.Message{}, err)
		}
	}
}

var defaultCommandTimeout = 5 * time.Second
