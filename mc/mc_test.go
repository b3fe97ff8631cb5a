package mc

import "testing"

func TestParseCapabilitiesBitOrder(t *testing.T) {
	caps := ParseCapabilities(0b10000001) // SensorDevice + Chassis
	if !caps.Chassis || !caps.SensorDevice {
		t.Fatalf("expected Chassis and SensorDevice set, got %+v", caps)
	}
	if caps.Bridge || caps.FRU || caps.SEL || caps.SDRRepo {
		t.Fatalf("unexpected bits set: %+v", caps)
	}
}

func TestDeviceIDAtLeast15(t *testing.T) {
	cases := []struct {
		major, minor uint8
		want         bool
	}{
		{1, 5, true},
		{1, 6, true},
		{1, 4, false},
		{2, 0, true},
		{0, 9, false},
	}
	for _, c := range cases {
		d := DeviceID{IPMIMajor: c.major, IPMIMinor: c.minor}
		if got := d.AtLeast15(); got != c.want {
			t.Errorf("major=%d minor=%d: got %v, want %v", c.major, c.minor, got, c.want)
		}
	}
}
