package discovery

import "sync"

// presenceCache tracks, per slave address, the bus-scan generation that
// last observed it answering. Adapted from the teacher's disk-backed
// Cache (same mutex-guarded read/update shape) but kept entirely in
// memory — it never touches disk, so it does not reintroduce the
// cross-restart persistence the spec's Non-goals exclude. This answers the
// Open Question on MC eviction: nothing in the default discovery flow
// calls Rescan, so eviction is strictly opt-in.
type presenceCache struct {
	mu         sync.Mutex
	generation uint64
	seenAt     map[uint8]uint64
}

func newPresenceCache() *presenceCache {
	return &presenceCache{seenAt: make(map[uint8]uint64)}
}

// touch records that addr answered during the current generation.
func (c *presenceCache) touch(addr uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seenAt[addr] = c.generation
}

// advance starts a new scan generation and returns it.
func (c *presenceCache) advance() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return c.generation
}

// stale returns every tracked address whose last-seen generation is two or
// more scans behind the current one.
func (c *presenceCache) stale() []uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []uint8
	for addr, gen := range c.seenAt {
		if c.generation >= gen+2 {
			out = append(out, addr)
		}
	}
	return out
}

// forget removes addr from the cache once it has actually been evicted
// from the BMC's MC list.
func (c *presenceCache) forget(addr uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seenAt, addr)
}
