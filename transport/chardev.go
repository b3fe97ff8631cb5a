package transport

import (
	"fmt"

	"ipmicore/ipmi"
)

// RecvKind classifies one message read off the character device, per §4.1
// of the spec: a response to a pending command, an asynchronous event, or
// an incoming command addressed to us.
type RecvKind uint8

const (
	KindResponse RecvKind = iota
	KindEvent
	KindCommand
)

func (k RecvKind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// CharDevice is the character-device transport surface the spec names in
// §6: send one request carrying a correlation token, receive one of
// response/event/command plus its source address, with truncation
// reported explicitly so the caller can synthesize the
// REQUESTED_DATA_LENGTH_EXCEEDED response itself rather than silently
// dropping the tail of an oversized payload.
type CharDevice interface {
	// Fd returns the underlying file descriptor, for registration with an
	// osdeps.Poller.
	Fd() int
	// SendCommand writes one request, tagged with token as the kernel
	// correlation identifier (the ABI's msgid field).
	SendCommand(addr ipmi.Address, msg ipmi.Message, token int64) error
	// SendResponse writes one fire-and-forget response bearing the exact
	// sequence the original command arrived with.
	SendResponse(addr ipmi.Address, msg ipmi.Message, seq int64) error
	// SetEventsEnabled toggles asynchronous event delivery. Called on the
	// first event-subscriber registration and after the last one is
	// removed (§6 / §8: "registering a subscriber from empty enables
	// it").
	SetEventsEnabled(enabled bool) error
	// Recv drains exactly one message. truncated reports the device's
	// oversized-payload indicator; when true, msg's data is whatever
	// portion the kernel returned (Data may be empty) and the caller
	// should synthesize a REQUESTED_DATA_LENGTH_EXCEEDED response.
	Recv() (kind RecvKind, addr ipmi.Address, token int64, msg ipmi.Message, truncated bool, err error)
	Close() error
}

// deviceCandidates are the paths tried, in order, per §6 of the spec.
func deviceCandidates(n int) []string {
	return []string{
		fmt.Sprintf("/dev/ipmidev/%d", n),
		fmt.Sprintf("/dev/ipmi/%d", n),
		fmt.Sprintf("/dev/ipmi%d", n),
	}
}
