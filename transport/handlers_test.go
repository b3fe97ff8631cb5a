package transport

import (
	"testing"

	"ipmicore/ipmi"
)

func TestHandlerRegistryDeregisterUnknownCommandFails(t *testing.T) {
	r := newHandlerRegistry()
	if err := r.deregisterCommand(0x06, 0x01); err != ipmi.ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestHandlerRegistryDeregisterUnknownEventFails(t *testing.T) {
	r := newHandlerRegistry()
	if _, err := r.deregisterEvent(42); err != ipmi.ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestHandlerRegistryEventTokensAreDistinctAcrossReregistration(t *testing.T) {
	r := newHandlerRegistry()
	id1, becameNonEmpty := r.registerEvent(func(ipmi.Address, ipmi.Message) {})
	if !becameNonEmpty {
		t.Fatal("expected the first registration to report becameNonEmpty")
	}
	becameEmpty, err := r.deregisterEvent(id1)
	if err != nil {
		t.Fatalf("deregister id1: %v", err)
	}
	if !becameEmpty {
		t.Fatal("expected removing the only subscriber to report becameEmpty")
	}
	id2, becameNonEmpty := r.registerEvent(func(ipmi.Address, ipmi.Message) {})
	if !becameNonEmpty {
		t.Fatal("expected registering from empty to report becameNonEmpty")
	}
	if id1 == id2 {
		t.Fatal("expected a fresh token after deregistration, not a reused one")
	}
}

func TestHandlerRegistryDispatchCommandReturnsFalseWhenUnhandled(t *testing.T) {
	r := newHandlerRegistry()
	if r.dispatchCommand(0x06, 0x01, ipmi.Address{}, ipmi.Message{}) {
		t.Fatal("expected dispatchCommand to report no handler found")
	}
}
