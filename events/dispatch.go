// Package events implements the asynchronous-event classification and
// fan-out described in §4.4: an OEM pre-filter, sensor-specific routing by
// channel/slave/LUN/sensor number, and a system-level subscriber fan-out
// for everything the first two steps don't claim.
package events

import (
	"ipmicore/ipmi"
	"ipmicore/mc"
)

// SystemEventHandler receives a system-level event that was not claimed by
// the OEM filter or routed to a specific sensor.
type SystemEventHandler func(addr ipmi.Address, msg ipmi.Message)

// SensorHandler receives an event routed to a specific sensor on a specific
// MC.
type SensorHandler func(m *mc.MC, sensorNum uint8, addr ipmi.Address, msg ipmi.Message)

// OEMFilter is consulted first; returning true means "handled, stop here".
type OEMFilter func(addr ipmi.Address, msg ipmi.Message) bool

const (
	systemEventRecordType = 0x02
	mcGeneratedBit        = 0x01
)

// Dispatcher owns the OEM filter, the per-sensor lookup, and the
// system-level subscriber list for one BMC's events. transport.Connection
// feeds it every ASYNC_EVENT recv via Dispatch.
type Dispatcher struct {
	bmc *mc.BMC

	OEMFilter    OEMFilter
	SensorLookup func(m *mc.MC, sensorNum uint8) (SensorHandler, bool)

	subs *subscriberList
}

// NewDispatcher returns a Dispatcher resolving MCs against bmc.
func NewDispatcher(bmc *mc.BMC) *Dispatcher {
	return &Dispatcher{bmc: bmc, subs: newSubscriberList()}
}

// Subscribe adds a system-level event subscriber and returns a token for
// Unsubscribe.
func (d *Dispatcher) Subscribe(fn SystemEventHandler) int {
	return d.subs.add(fn)
}

// Unsubscribe removes a previously added subscriber.
func (d *Dispatcher) Unsubscribe(id int) error {
	return d.subs.remove(id)
}

// Dispatch classifies and routes one asynchronous event, per §4.4:
//  1. the OEM filter, if any, gets first refusal
//  2. a system-event-record message generated by an MC is routed to that
//     MC's sensor handler when both resolve
//  3. anything else fans out to every system-level subscriber
func (d *Dispatcher) Dispatch(addr ipmi.Address, msg ipmi.Message) {
	if d.OEMFilter != nil && d.OEMFilter(addr, msg) {
		return
	}

	if target, sensorNum, ok := d.classifySensorEvent(msg); ok {
		if m, found := d.bmc.Resolve(target); found {
			if d.SensorLookup != nil {
				if handler, found := d.SensorLookup(m, sensorNum); found {
					handler(m, sensorNum, addr, msg)
					return
				}
			}
		}
	}

	d.subs.dispatch(addr, msg)
}

// classifySensorEvent implements the byte-offset derivation in §4.4: a
// system event record (data[2]==0x02) generated by an MC (data[7] bit 0
// clear) carries channel/mc_num/lun/sensor at fixed offsets. ok is false
// for anything else, including messages too short to hold these fields.
func (d *Dispatcher) classifySensorEvent(msg ipmi.Message) (addr ipmi.Address, sensorNum uint8, ok bool) {
	data := msg.Data
	if len(data) < 12 {
		return ipmi.Address{}, 0, false
	}
	if data[2] != systemEventRecordType {
		return ipmi.Address{}, 0, false
	}
	if data[7]&mcGeneratedBit != 0 {
		return ipmi.Address{}, 0, false
	}

	var channel uint8
	if data[8] == 0x03 {
		channel = 0
	} else {
		channel = data[8] >> 4
	}
	mcNum := data[7]
	lun := data[8] & 0x3
	sensorNum = data[11]

	return ipmi.IPMBAddr(channel, mcNum, lun), sensorNum, true
}
