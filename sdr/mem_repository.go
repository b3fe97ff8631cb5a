package sdr

import "sync"

// MemRepository is an in-process, append-only store of raw SDR records. It
// never decodes sensor/entity-bearing record types — only type-0x14
// (channel info), which the discovery engine needs for the pre-1.5 channel
// probe path.
type MemRepository struct {
	mu      sync.Mutex
	records [][]byte
}

// NewMemRepository returns an empty repository.
func NewMemRepository() *MemRepository {
	return &MemRepository{}
}

func (r *MemRepository) Add(raw []byte) error {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	r.mu.Lock()
	r.records = append(r.records, cp)
	r.mu.Unlock()
	return nil
}

func (r *MemRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *MemRepository) Clear() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}

// Type14ChannelInfo decodes the first type-0x14 SDR found, per the wire
// layout in §6 of the spec: length 11, bytes[0..7] one packed byte per
// channel (protocol in bits 0-3, recv_lun in bits 4-5, xmit_support in bit
// 7), byte 8 = msg_int_type, byte 9 = event_msg_int_type, byte 10 reserved.
func (r *MemRepository) Type14ChannelInfo() ([]ChannelRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, raw := range r.records {
		if recordType(raw) != RecordTypeChannelInfo {
			continue
		}
		body := raw[sdrHeaderLen:]
		if len(body) < 10 {
			continue
		}
		msgIntType := body[8]
		eventMsgIntType := body[9]

		var out []ChannelRecord
		for ch := 0; ch < 8; ch++ {
			b := body[ch]
			if b == 0 {
				continue
			}
			out = append(out, ChannelRecord{
				Channel:         uint8(ch),
				Protocol:        b & 0x0F,
				XmitSupport:     b&0x80 != 0,
				RecvLUN:         (b >> 4) & 0x03,
				MsgIntType:      msgIntType,
				EventMsgIntType: eventMsgIntType,
			})
		}
		return out, true
	}
	return nil, false
}
