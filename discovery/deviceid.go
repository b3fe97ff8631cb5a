package discovery

import (
	"fmt"

	"ipmicore/ipmi"
	"ipmicore/mc"
)

// ParseDeviceID decodes a Get Device ID response body (data[0] is the
// completion code; fields start at data[1]) per §4.3's exact byte layout.
// It is a pure function: parsing the same bytes twice yields identical
// results (§8's round-trip property).
func ParseDeviceID(data []byte) (mc.DeviceID, error) {
	if len(data) < 12 {
		return mc.DeviceID{}, fmt.Errorf("%w: device id response too short (%d bytes)", ipmi.ErrProtocol, len(data))
	}

	d := mc.DeviceID{
		DeviceID:           data[1],
		DeviceRev:          data[2] & 0x0F,
		ProvidesDeviceSDRs: data[2]&0x80 != 0,
		DeviceAvailable:    data[3]&0x80 != 0,
		FWMajor:            data[3] & 0x7F,
		FWMinor:            data[4],
		IPMIMajor:          data[5] & 0x0F,
		IPMIMinor:          (data[5] >> 4) & 0x0F,
		Capabilities:       mc.ParseCapabilities(data[6]),
		ManufacturerID:     uint32(data[7]) | uint32(data[8])<<8 | uint32(data[9])<<16,
		ProductID:          uint16(data[10]) | uint16(data[11])<<8,
	}

	for i := 0; i < 4; i++ {
		idx := 12 + i
		if idx < len(data) {
			d.AuxFW[i] = data[idx]
		}
		// Shorter responses (length 12-15) leave the remaining AuxFW
		// bytes at their zero value, per §8's boundary property.
	}

	return d, nil
}
