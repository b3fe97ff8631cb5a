package mc

import (
	"sync"

	"ipmicore/ipmi"
	"ipmicore/sdr"
	"ipmicore/transport"
)

// ChannelInfo is one entry of a BMC's channel table, populated either by
// the ≥1.5 Get Channel Info probe or by decoding an SDR type-0x14 record
// for older devices.
type ChannelInfo struct {
	Medium         uint8
	XmitSupport    bool
	RecvLUN        uint8
	Protocol       uint8
	SessionSupport uint8
	VendorID       uint32
	AuxInfo        uint16
}

const maxChannels = 9

// BMC is the extension state present only for the MC that represents the
// local system interface's BMC. It owns the transport connection, the main
// SDR repository, the channel table, the satellite MC list, and hook fields
// (OEMEventFilter, NewMCHook, NewEntityHook) for embedding code. The
// discovery and events packages take their own hooks
// (discovery.Config.NewMCHook, events.Dispatcher.OEMFilter) and do not read
// these fields.
type BMC struct {
	self *MC

	Conn     *transport.Connection
	MainSDRs sdr.Repository
	Channels [maxChannels]ChannelInfo

	MsgIntType      uint8
	EventMsgIntType uint8

	mcListMu sync.Mutex
	mcList   []*MC
	closed   bool

	busScanInFlight bool

	// State is an opaque label the discovery engine updates as it drives
	// this BMC through its states; mc itself attaches no behavior to it,
	// keeping this package free of a dependency on the discovery state
	// machine.
	State string

	OEMEventFilter func(addr ipmi.Address, msg ipmi.Message) bool
	NewMCHook      func(m *MC)
	NewEntityHook  func(entity any)
}

// NewBMC constructs a BMC owning conn, with an empty satellite list and an
// empty main SDR repository. MsgIntType and EventMsgIntType default to 0xff,
// matching original_source/mc.c's allocation defaults; the <1.5 discovery
// path overrides both from the decoded SDR once one is found.
func NewBMC(addr ipmi.Address, conn *transport.Connection) *BMC {
	b := &BMC{
		Conn:            conn,
		MainSDRs:        sdr.NewMemRepository(),
		State:           "dead",
		MsgIntType:      0xff,
		EventMsgIntType: 0xff,
	}
	b.self = &MC{Addr: addr, IsBMC: true, bmc: b, DeviceSDRs: sdr.NewMemRepository()}
	return b
}

// Self returns the BMC's own MC record.
func (b *BMC) Self() *MC {
	return b.self
}

// AddMC inserts m into the satellite list, rejecting a duplicate address.
// m's owner back-pointer is set and InBMCList raised as part of insertion,
// per the invariant that an MC is only ever in its list once discovery has
// fully completed for it.
func (b *BMC) AddMC(m *MC) error {
	b.mcListMu.Lock()
	defer b.mcListMu.Unlock()
	for _, existing := range b.mcList {
		if existing.Addr.Equal(m.Addr) {
			return ipmi.ErrAlreadyExists
		}
	}
	m.bmc = b
	m.InBMCList = true
	b.mcList = append(b.mcList, m)
	return nil
}

// RemoveMC removes the MC at addr from the satellite list, if present.
func (b *BMC) RemoveMC(addr ipmi.Address) bool {
	b.mcListMu.Lock()
	defer b.mcListMu.Unlock()
	for i, m := range b.mcList {
		if m.Addr.Equal(addr) {
			m.InBMCList = false
			b.mcList = append(b.mcList[:i], b.mcList[i+1:]...)
			return true
		}
	}
	return false
}

// MCs returns a snapshot of the current satellite list.
func (b *BMC) MCs() []*MC {
	b.mcListMu.Lock()
	defer b.mcListMu.Unlock()
	out := make([]*MC, len(b.mcList))
	copy(out, b.mcList)
	return out
}

// TryStartBusScan reports whether a bus scan was not already in flight, and
// if so marks one started. Mirrors original_source/mc.c's
// working_at_bus_scan guard (§3.1), preventing a second bus scan (for
// example one started by discovery's Engine.Rescan) while one is underway.
func (b *BMC) TryStartBusScan() bool {
	b.mcListMu.Lock()
	defer b.mcListMu.Unlock()
	if b.busScanInFlight {
		return false
	}
	b.busScanInFlight = true
	return true
}

// FinishBusScan clears the in-flight flag.
func (b *BMC) FinishBusScan() {
	b.mcListMu.Lock()
	b.busScanInFlight = false
	b.mcListMu.Unlock()
}
