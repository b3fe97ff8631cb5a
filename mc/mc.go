// Package mc models IPMI Management Controllers: the BMC reachable over the
// system interface and any satellite MCs discovered on IPMB, their parsed
// Device ID fields and capability bits, and the registry/handle types used
// to resolve an Address to an MC safely across event-loop turns.
package mc

import (
	"ipmicore/ipmi"
	"ipmicore/sdr"
)

// Capabilities are the eight single-bit flags carried in a Get Device ID
// response's byte 6, in the wire order named by the spec.
type Capabilities struct {
	Chassis       bool
	Bridge        bool
	IPMBEventGen  bool
	IPMBEventRecv bool
	FRU           bool
	SEL           bool
	SDRRepo       bool
	SensorDevice  bool
}

// ParseCapabilities decodes the eight capability bits from a Get Device ID
// response's byte 6.
func ParseCapabilities(b byte) Capabilities {
	return Capabilities{
		Chassis:       b&0x01 != 0,
		Bridge:        b&0x02 != 0,
		IPMBEventGen:  b&0x04 != 0,
		IPMBEventRecv: b&0x08 != 0,
		FRU:           b&0x10 != 0,
		SEL:           b&0x20 != 0,
		SDRRepo:       b&0x40 != 0,
		SensorDevice:  b&0x80 != 0,
	}
}

// DeviceID holds every field decoded from a Get Device ID response, per the
// byte layout in the discovery state machine's device-ID parse step.
type DeviceID struct {
	DeviceID           uint8
	DeviceRev          uint8
	ProvidesDeviceSDRs bool
	DeviceAvailable    bool
	FWMajor            uint8
	FWMinor            uint8
	IPMIMajor          uint8
	IPMIMinor          uint8
	Capabilities       Capabilities
	ManufacturerID     uint32 // 24-bit
	ProductID          uint16
	AuxFW              [4]byte
}

// AtLeast15 reports whether the parsed IPMI version is 1.5 or later, the
// branch point between the Get Channel Info probe and the SDR type-0x14
// synthesis path.
func (d DeviceID) AtLeast15() bool {
	if d.IPMIMajor != 1 {
		return d.IPMIMajor > 1
	}
	return d.IPMIMinor >= 5
}

// MC is one Management Controller: either the BMC itself (IsBMC true) or a
// satellite discovered on IPMB. bmc is the single back-pointer to the
// owning BMC: NewBMC sets it on the BMC's own record and AddMC sets it on a
// satellite, so a satellite built but not yet added has no owner. Having
// exactly one owner field is the fix for the source's mc->bmc vs
// mc->bmc_mc->bmc confusion.
type MC struct {
	Addr    ipmi.Address
	IsBMC   bool
	Channel uint8
	McNum   uint8 // slave address on IPMB; 0 for the BMC's own record

	DeviceID DeviceID

	DeviceSDRs sdr.Repository
	InBMCList  bool

	// NewSensorHook, if set, is invoked when a sensor is discovered for
	// this MC. Sensor parsing itself is an external collaborator's job
	// (§1); the core only carries the hook.
	NewSensorHook func(m *MC, sensorNum uint8)

	bmc *BMC
}

// Owner returns the BMC that owns this MC — the BMC itself for its own
// record, nil for a satellite not yet added with AddMC.
func (m *MC) Owner() *BMC {
	return m.bmc
}
