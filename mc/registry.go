package mc

import "ipmicore/ipmi"

// Resolve implements §4.2's lookup: slave address 0x20 on IPMB always
// resolves to the BMC, never to a satellite, before falling back to a
// linear scan of the satellite list by structural address equality.
func (b *BMC) Resolve(addr ipmi.Address) (*MC, bool) {
	if addr.IsBMCSlave() {
		return b.self, true
	}

	b.mcListMu.Lock()
	defer b.mcListMu.Unlock()
	for _, m := range b.mcList {
		if m.Addr.Equal(addr) {
			return m, true
		}
	}
	return nil, false
}
