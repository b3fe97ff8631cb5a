package mc

import (
	"testing"

	"ipmicore/ipmi"
)

func TestCloseConnectionRejectsSatellite(t *testing.T) {
	b := NewBMC(ipmi.SystemInterface(0), nil)
	sat := &MC{Addr: ipmi.IPMBAddr(0, 0x24, 0)}
	_ = b.AddMC(sat)

	if err := CloseConnection(sat); err != ipmi.ErrInvalidArgument {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
	if len(b.MCs()) != 1 {
		t.Fatal("CloseConnection on a satellite must not perform any teardown")
	}
}

func TestCloseConnectionOnBMCTearsDownListAndIsIdempotent(t *testing.T) {
	b := NewBMC(ipmi.SystemInterface(0), nil)
	_ = b.AddMC(&MC{Addr: ipmi.IPMBAddr(0, 0x24, 0)})

	if err := CloseConnection(b.Self()); err != nil {
		t.Fatalf("CloseConnection: %v", err)
	}
	if len(b.MCs()) != 0 {
		t.Fatal("expected satellite list cleared after close")
	}
	if err := CloseConnection(b.Self()); err != nil {
		t.Fatalf("second CloseConnection should be a no-op, got: %v", err)
	}
}

func TestHandleGetFailsAfterClose(t *testing.T) {
	b := NewBMC(ipmi.SystemInterface(0), nil)
	h := HandleOf(b.Self())

	if err := CloseConnection(b.Self()); err != nil {
		t.Fatalf("CloseConnection: %v", err)
	}
	if err := h.Get(func(*MC) {}); err != ipmi.ErrInvalidArgument {
		t.Fatalf("got %v, want ErrInvalidArgument after close", err)
	}
}
