package discovery

import (
	"sync"

	"ipmicore/ipmi"
	"ipmicore/transport"
)

// fakeDevice is a minimal transport.CharDevice test double, local to this
// package so discovery's end-to-end tests can drive an Engine without any
// real kernel device — mirroring the corpus's preference for hand-rolled
// fakes over mocking frameworks.
type fakeDevice struct {
	mu      sync.Mutex
	sent    []sentCmd
	inbox   []queuedMsg
	enabled bool
}

type sentCmd struct {
	addr  ipmi.Address
	msg   ipmi.Message
	token int64
}

type queuedMsg struct {
	kind      transport.RecvKind
	addr      ipmi.Address
	token     int64
	msg       ipmi.Message
	truncated bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{}
}

func (f *fakeDevice) Fd() int { return 77 }

func (f *fakeDevice) SendCommand(addr ipmi.Address, msg ipmi.Message, token int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentCmd{addr, msg, token})
	return nil
}

func (f *fakeDevice) SendResponse(addr ipmi.Address, msg ipmi.Message, seq int64) error {
	return nil
}

func (f *fakeDevice) SetEventsEnabled(enabled bool) error {
	f.mu.Lock()
	f.enabled = enabled
	f.mu.Unlock()
	return nil
}

func (f *fakeDevice) queue(kind transport.RecvKind, addr ipmi.Address, token int64, msg ipmi.Message, truncated bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = append(f.inbox, queuedMsg{kind, addr, token, msg, truncated})
}

func (f *fakeDevice) Recv() (transport.RecvKind, ipmi.Address, int64, ipmi.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbox) == 0 {
		return 0, ipmi.Address{}, 0, ipmi.Message{}, false, ipmi.ErrIO
	}
	m := f.inbox[0]
	f.inbox = f.inbox[1:]
	return m.kind, m.addr, m.token, m.msg, m.truncated, nil
}

func (f *fakeDevice) Close() error { return nil }

func (f *fakeDevice) lastSent() (sentCmd, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentCmd{}, false
	}
	return f.sent[len(f.sent)-1], true
}

func (f *fakeDevice) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
