package transport

import (
	"sync"

	"ipmicore/ipmi"
)

// fakeCharDevice is a test double standing in for the kernel character
// device: SendCommand/SendResponse append to an outbound log instead of
// doing I/O, and tests push incoming messages through queue/Recv directly,
// mirroring the corpus's hand-rolled fakes over mocking frameworks.
type fakeCharDevice struct {
	mu           sync.Mutex
	sent         []sentMsg
	inbox        []inboxMsg
	closed       bool
	recvErr      error
	eventsEnabled bool
	enableCalls  []bool
}

type sentMsg struct {
	addr  ipmi.Address
	msg   ipmi.Message
	token int64
	isCmd bool
}

type inboxMsg struct {
	kind      RecvKind
	addr      ipmi.Address
	token     int64
	msg       ipmi.Message
	truncated bool
}

func newFakeCharDevice() *fakeCharDevice {
	return &fakeCharDevice{}
}

func (f *fakeCharDevice) Fd() int { return 99 }

func (f *fakeCharDevice) SendCommand(addr ipmi.Address, msg ipmi.Message, token int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{addr, msg, token, true})
	return nil
}

func (f *fakeCharDevice) SendResponse(addr ipmi.Address, msg ipmi.Message, seq int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{addr, msg, seq, false})
	return nil
}

// queue makes msg available to the next Recv call.
func (f *fakeCharDevice) queue(kind RecvKind, addr ipmi.Address, token int64, msg ipmi.Message, truncated bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = append(f.inbox, inboxMsg{kind, addr, token, msg, truncated})
}

func (f *fakeCharDevice) Recv() (RecvKind, ipmi.Address, int64, ipmi.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recvErr != nil {
		return 0, ipmi.Address{}, 0, ipmi.Message{}, false, f.recvErr
	}
	if len(f.inbox) == 0 {
		return 0, ipmi.Address{}, 0, ipmi.Message{}, false, ipmi.ErrIO
	}
	m := f.inbox[0]
	f.inbox = f.inbox[1:]
	return m.kind, m.addr, m.token, m.msg, m.truncated, nil
}

func (f *fakeCharDevice) SetEventsEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventsEnabled = enabled
	f.enableCalls = append(f.enableCalls, enabled)
	return nil
}

func (f *fakeCharDevice) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeCharDevice) lastSent() (sentMsg, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMsg{}, false
	}
	return f.sent[len(f.sent)-1], true
}
