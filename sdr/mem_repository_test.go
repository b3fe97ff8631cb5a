package sdr

import "testing"

func buildType14(channels map[int]byte, msgInt, eventInt byte) []byte {
	// header: recordID(2) + version(1) + type(1) + length(1)
	body := make([]byte, 11)
	for ch, b := range channels {
		body[ch] = b
	}
	body[8] = msgInt
	body[9] = eventInt
	raw := append([]byte{0x00, 0x00, 0x51, RecordTypeChannelInfo, byte(len(body))}, body...)
	return raw
}

func TestType14ChannelInfoDecodesNonZeroChannels(t *testing.T) {
	repo := NewMemRepository()
	repo.Add(buildType14(map[int]byte{0: 0x81, 2: 0x01}, 0xFF, 0xFF))

	records, ok := repo.Type14ChannelInfo()
	if !ok {
		t.Fatal("expected a type-0x14 SDR to be found")
	}
	if len(records) != 2 {
		t.Fatalf("got %d channel records, want 2", len(records))
	}
	if records[0].Channel != 0 || !records[0].XmitSupport || records[0].Protocol != 0x01 {
		t.Errorf("channel 0 decoded wrong: %+v", records[0])
	}
	if records[1].Channel != 2 || records[1].XmitSupport {
		t.Errorf("channel 2 decoded wrong: %+v", records[1])
	}
}

func TestType14ChannelInfoAbsent(t *testing.T) {
	repo := NewMemRepository()
	repo.Add([]byte{0x00, 0x00, 0x51, 0x01, 0x00}) // unrelated record type
	if _, ok := repo.Type14ChannelInfo(); ok {
		t.Fatal("expected no type-0x14 SDR to be found")
	}
}

func TestClearRemovesAllRecords(t *testing.T) {
	repo := NewMemRepository()
	repo.Add(buildType14(nil, 0, 0))
	repo.Clear()
	if repo.Len() != 0 {
		t.Fatal("Clear must empty the repository")
	}
}
