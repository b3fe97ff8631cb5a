package mc

import "ipmicore/ipmi"

// Handle is an opaque, stable MC identifier, safe to store outside the
// event loop (§4.2: "MC_id = { bmc handle, channel, mc_num }"). Resolving it
// back to a live *MC always goes through Get, which validates the owning
// BMC is still open and takes the MC-list lock around the callback.
type Handle struct {
	BMC     *BMC
	Channel uint8
	McNum   uint8 // 0 names the BMC itself
}

// HandleOf returns the stable handle for m.
func HandleOf(m *MC) Handle {
	return Handle{BMC: m.Owner(), Channel: m.Channel, McNum: m.McNum}
}

// Get validates the handle's BMC is still open and invokes fn with the
// resolved MC while holding the MC-list lock — the coarse lock standing in
// for a per-MC lock, per §4.2. fn must not call back into this package
// (it would deadlock on the same lock) and must not retain the *MC past
// its own return.
func (h Handle) Get(fn func(*MC)) error {
	if h.BMC == nil {
		return ipmi.ErrInvalidArgument
	}

	h.BMC.mcListMu.Lock()
	defer h.BMC.mcListMu.Unlock()
	if h.BMC.closed {
		return ipmi.ErrInvalidArgument
	}

	if h.McNum == 0 {
		fn(h.BMC.self)
		return nil
	}

	addr := ipmi.IPMBAddr(h.Channel, h.McNum, 0)
	for _, m := range h.BMC.mcList {
		if m.Addr.Equal(addr) {
			fn(m)
			return nil
		}
	}
	return ipmi.ErrNotFound
}
