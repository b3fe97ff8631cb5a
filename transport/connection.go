package transport

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"ipmicore/ipmi"
	"ipmicore/osdeps"
)

// connRegistry is the process-wide table of live connections, guarded by
// the outermost lock in the hierarchy (§9 of the spec: connections RWMutex,
// then per-connection cmd_lock, then event_handlers_lock, then
// cmd_handlers_lock). NewConnection adds to it and Close removes from it.
// Connection methods do not consult it: SendCommand and SendResponse reject
// a closed connection through the connection's own atomic closed flag.
type connRegistry struct {
	mu    sync.RWMutex
	byID  map[uint64]*Connection
	nextID uint64
}

var global = &connRegistry{byID: make(map[uint64]*Connection)}

func (r *connRegistry) add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.id = r.nextID
	r.byID[c.id] = c
}

func (r *connRegistry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

func (r *connRegistry) valid(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// Connection is one open handle onto a BMC reachable through a character
// device: the send/receive path, its pending-command table, and its
// command/event handler registries. The event loop driving it is supplied
// externally (osdeps.Poller); Connection only registers callbacks, it never
// blocks on I/O itself.
type Connection struct {
	id uint64

	dev      CharDevice
	poller   osdeps.Poller
	log      *logrus.Entry
	handlers *handlerRegistry
	pending  *pendingTable

	closed int32 // atomic
}

// NewConnection wires dev into poller's event loop and returns a ready
// Connection. The caller retains ownership of poller (it may be shared
// across several connections) but Connection owns dev and closes it.
func NewConnection(dev CharDevice, poller osdeps.Poller, log *logrus.Entry) (*Connection, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil CharDevice", ipmi.ErrInvalidArgument)
	}
	if poller == nil {
		return nil, fmt.Errorf("%w: nil Poller", ipmi.ErrNotSupported)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	c := &Connection{
		dev:      dev,
		poller:   poller,
		log:      log,
		handlers: newHandlerRegistry(),
		pending:  newPendingTable(),
	}
	global.add(c)

	if err := poller.AddFD(dev.Fd(), c.onReadable); err != nil {
		global.remove(c.id)
		return nil, fmt.Errorf("%w: registering char device fd: %v", ipmi.ErrIO, err)
	}
	return c, nil
}

func (c *Connection) isClosed() bool {
	return atomic.LoadInt32(&c.closed) != 0
}

// SendCommand issues a request and arranges for respond to be invoked
// exactly once: with the matching response, with ipmi.ErrTimeout (and a
// synthesized CCTimeout response) if none arrives within
// defaultCommandTimeout, or with ipmi.ErrIO if the connection is closed
// first.
func (c *Connection) SendCommand(addr ipmi.Address, msg ipmi.Message, respond ResponseFunc) error {
	if c.isClosed() {
		return fmt.Errorf("%w: connection closed", ipmi.ErrInvalidArgument)
	}
	if respond == nil {
		return fmt.Errorf("%w: nil respond callback", ipmi.ErrInvalidArgument)
	}

	token := c.pending.add(addr, msg, respond)
	if err := c.dev.SendCommand(addr, msg, token); err != nil {
		c.pending.resolve(token)
		return err
	}

	timer := c.poller.AddTimer(defaultCommandTimeout, func() { c.onTimeout(token) })
	c.pending.setTimer(token, timer)
	return nil
}

// SendResponse issues a fire-and-forget response to a command we were asked
// to handle, echoing seq exactly as received.
func (c *Connection) SendResponse(addr ipmi.Address, msg ipmi.Message, seq int64) error {
	if c.isClosed() {
		return fmt.Errorf("%w: connection closed", ipmi.ErrInvalidArgument)
	}
	return c.dev.SendResponse(addr, msg, seq)
}

// RegisterCommandHandler installs fn for incoming commands matching
// (netFn,cmd). Returns ipmi.ErrAlreadyExists if one is already registered.
func (c *Connection) RegisterCommandHandler(netFn ipmi.NetFn, cmd uint8, fn CommandHandlerFunc) error {
	return c.handlers.registerCommand(netFn, cmd, fn)
}

// DeregisterCommandHandler removes a previously registered handler.
func (c *Connection) DeregisterCommandHandler(netFn ipmi.NetFn, cmd uint8) error {
	return c.handlers.deregisterCommand(netFn, cmd)
}

// RegisterEventHandler subscribes fn to every asynchronous event and returns
// a token for DeregisterEventHandler. The first subscription enables
// asynchronous event delivery on the underlying device (§8: "registering a
// subscriber from empty enables it").
func (c *Connection) RegisterEventHandler(fn EventHandlerFunc) int {
	id, becameNonEmpty := c.handlers.registerEvent(fn)
	if becameNonEmpty {
		if err := c.dev.SetEventsEnabled(true); err != nil {
			c.log.WithError(err).Warn("ipmicore: enabling event delivery failed")
		}
	}
	return id
}

// DeregisterEventHandler removes a previously registered event subscriber,
// disabling event delivery on the device once the last subscriber is gone.
func (c *Connection) DeregisterEventHandler(id int) error {
	becameEmpty, err := c.handlers.deregisterEvent(id)
	if err != nil {
		return err
	}
	if becameEmpty {
		if err := c.dev.SetEventsEnabled(false); err != nil {
			c.log.WithError(err).Warn("ipmicore: disabling event delivery failed")
		}
	}
	return nil
}

// Close tears the connection down: deregisters the fd, fails every pending
// command with ipmi.ErrIO, and closes the underlying device. Idempotent.
func (c *Connection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	global.remove(c.id)
	_ = c.poller.RemoveFD(c.dev.Fd())
	c.pending.closeAll(fmt.Errorf("%w: connection closed", ipmi.ErrIO))
	return c.dev.Close()
}

func (c *Connection) onTimeout(token int64) {
	slot, ok := c.pending.resolve(token)
	if !ok {
		// Already resolved by a response that arrived first; the
		// "cancelled flag" idiom means this callback simply has nothing
		// left to own.
		return
	}
	resp := ipmi.Message{
		NetFn: ipmi.ResponseNetFn(slot.request.NetFn),
		Cmd:   slot.request.Cmd,
		Data:  []byte{ipmi.CCTimeout},
	}
	slot.respond(resp, ipmi.ErrTimeout)
}

func (c *Connection) onReadable() {
	for {
		kind, addr, token, msg, truncated, err := c.dev.Recv()
		if err != nil {
			c.log.WithError(err).Warn("ipmicore: char device read failed")
			return
		}

		if truncated {
			msg = ipmi.Message{
				NetFn: ipmi.ResponseNetFn(msg.NetFn),
				Cmd:   msg.Cmd,
				Data:  []byte{ipmi.CCRequestedDataLengthExceeded},
			}
			kind = KindResponse
		}

		switch kind {
		case KindResponse:
			c.handleResponse(addr, token, msg)
		case KindEvent:
			c.handlers.dispatchEvent(addr, msg)
		case KindCommand:
			if !c.handlers.dispatchCommand(msg.NetFn, msg.Cmd, addr, msg) {
				c.log.WithFields(logrus.Fields{
					"netfn": msg.NetFn,
					"cmd":   msg.Cmd,
				}).Debug("ipmicore: no handler for incoming command, replying invalid command")
				rsp := ipmi.Message{
					NetFn: ipmi.ResponseNetFn(msg.NetFn),
					Cmd:   msg.Cmd,
					Data:  []byte{ipmi.CCInvalidCmd},
				}
				if err := c.dev.SendResponse(addr, rsp, token); err != nil {
					c.log.WithError(err).Warn("ipmicore: sending invalid-command response failed")
				}
			}
		}

		// Kernel char devices return one message per read; a single
		// RunOne-driven readability callback only needs to drain what is
		// immediately available, so a non-blocking check would be ideal
		// here. Recv's contract makes that the CharDevice's job (it must
		// not block past what epoll already promised was ready), so one
		// pass is always correct; further data re-arms the fd.
		return
	}
}

// handleResponse resolves token's pending slot, but only if addr (the
// response's actual source, as reported by the char device) agrees with the
// address the command was sent to — a response whose correlation token
// matches but whose source address doesn't is treated the same as an
// unknown token, per §9's "don't trust the token alone" requirement.
func (c *Connection) handleResponse(addr ipmi.Address, token int64, msg ipmi.Message) {
	slot, ok := c.pending.removeIfMatches(token, addr)
	if !ok {
		c.log.WithField("token", token).Debug("ipmicore: response for unknown or already-resolved command, or source address mismatch")
		return
	}
	if slot.timer != nil {
		slot.timer.Cancel()
	}
	slot.respond(msg, nil)
}
