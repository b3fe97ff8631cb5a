// Package sdr defines the minimal boundary the discovery engine needs
// against a Sensor Data Record repository, without parsing sensor, entity
// or control records — that is an external collaborator's job (§1 of the
// spec: "SDR parsing... is out of scope, named only by the interface the
// core exposes to or consumes from it").
package sdr

// ChannelRecord is the subset of a type-0x14 (channel info) SDR the
// discovery engine needs to populate a channel table on pre-1.5 BMCs, and
// to assemble a type-0x14 SDR for write-back on such BMCs.
type ChannelRecord struct {
	Channel         uint8
	Protocol        uint8
	XmitSupport     bool
	RecvLUN         uint8
	MsgIntType      uint8
	EventMsgIntType uint8
}

// Repository is the narrow interface the discovery engine drives. A real
// implementation would decode full SDR records (sensor thresholds, entity
// associations, etc.); ipmicore ships only MemRepository, which is enough
// to satisfy discovery's "allocate main/device SDR sets" and "look up a
// type-0x14 SDR" requirements without decoding anything else.
type Repository interface {
	// Add appends one raw SDR record (as read off the wire) to the set.
	Add(raw []byte) error
	// Len reports how many records are currently held.
	Len() int
	// Type14ChannelInfo scans the held records for a type-0x14 SDR and
	// decodes its per-channel table. ok is false if no such record exists.
	Type14ChannelInfo() (records []ChannelRecord, ok bool)
	// Clear discards all held records (used during MC/BMC teardown).
	Clear()
}

// RecordTypeChannelInfo is the record-type byte of a channel-info SDR. The
// record type sits at a fixed offset (byte 3) in every SDR per the IPMI
// spec; only the one value the core cares about is named.
const RecordTypeChannelInfo = 0x14

// sdrHeaderLen is the common SDR header length preceding record-type
// specific bytes (record ID (2) + SDR version (1) + record type (1) +
// length (1)).
const sdrHeaderLen = 5

// recordType returns the record-type byte of a raw SDR, or 0 if too short
// to contain one.
func recordType(raw []byte) uint8 {
	if len(raw) < 4 {
		return 0
	}
	return raw[3]
}
