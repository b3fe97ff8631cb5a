// Package ipmi holds the wire-level types shared by every ipmicore package:
// addresses, messages, completion codes and the sentinel error kinds.
package ipmi

import "fmt"

// AddrType tags the active variant of an Address.
type AddrType uint8

const (
	// AddrSystemInterface names the BMC reachable through the local
	// character device, with no IPMB hop.
	AddrSystemInterface AddrType = iota
	// AddrIPMB names a single device on an IPMB segment.
	AddrIPMB
	// AddrIPMBBroadcast names a broadcast probe on an IPMB segment; it is
	// only ever used as the destination of a send, never matched against
	// during MC lookup.
	AddrIPMBBroadcast
)

func (t AddrType) String() string {
	switch t {
	case AddrSystemInterface:
		return "system-interface"
	case AddrIPMB:
		return "ipmb"
	case AddrIPMBBroadcast:
		return "ipmb-broadcast"
	default:
		return "unknown"
	}
}

// BMCSlaveAddr is the slave address that always resolves to the BMC itself
// on an IPMB segment (§4.2 of the spec).
const BMCSlaveAddr = 0x20

// Address is the tagged variant described by the data model: a
// system-interface address, an IPMB unicast address, or an IPMB broadcast
// probe address. Equality is structural on the active variant's fields;
// Channel always participates.
type Address struct {
	Type      AddrType
	Channel   uint8
	SlaveAddr uint8 // valid for AddrIPMB / AddrIPMBBroadcast
	LUN       uint8 // valid for AddrIPMB / AddrIPMBBroadcast
}

// SystemInterface builds a system-interface address on the given channel.
func SystemInterface(channel uint8) Address {
	return Address{Type: AddrSystemInterface, Channel: channel}
}

// IPMBAddr builds a unicast IPMB address.
func IPMBAddr(channel, slaveAddr, lun uint8) Address {
	return Address{Type: AddrIPMB, Channel: channel, SlaveAddr: slaveAddr, LUN: lun}
}

// IPMBBroadcast builds an IPMB broadcast probe address.
func IPMBBroadcast(channel, slaveAddr, lun uint8) Address {
	return Address{Type: AddrIPMBBroadcast, Channel: channel, SlaveAddr: slaveAddr, LUN: lun}
}

// Equal reports structural equality on the active variant's fields, per the
// data model: channel always compares, slave address and LUN only compare
// for IPMB variants.
func (a Address) Equal(b Address) bool {
	if a.Type != b.Type || a.Channel != b.Channel {
		return false
	}
	switch a.Type {
	case AddrIPMB, AddrIPMBBroadcast:
		return a.SlaveAddr == b.SlaveAddr && a.LUN == b.LUN
	default:
		return true
	}
}

// IsBMCSlave reports whether this is an IPMB address naming slave 0x20 — the
// short-circuit case that always resolves to the BMC, never a satellite.
func (a Address) IsBMCSlave() bool {
	return a.Type == AddrIPMB && a.SlaveAddr == BMCSlaveAddr
}

func (a Address) String() string {
	switch a.Type {
	case AddrSystemInterface:
		return fmt.Sprintf("si(ch=%d)", a.Channel)
	case AddrIPMB:
		return fmt.Sprintf("ipmb(ch=%d,slave=0x%02x,lun=%d)", a.Channel, a.SlaveAddr, a.LUN)
	case AddrIPMBBroadcast:
		return fmt.Sprintf("ipmb-bcast(ch=%d,slave=0x%02x,lun=%d)", a.Channel, a.SlaveAddr, a.LUN)
	default:
		return "invalid-addr"
	}
}
