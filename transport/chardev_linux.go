//go:build linux

package transport

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	ioctl "github.com/vtolstov/go-ioctl"
	"golang.org/x/sys/unix"

	"ipmicore/ipmi"
)

// Kernel OpenIPMI ABI constants (linux/ipmi.h). Grounded on example repo
// backwardn-u-root's pkg/ipmi, which drives the same ioctls the same way.
const (
	ipmiIOCMagic = 'i'

	ipmiSystemInterfaceAddrType = 0x0c
	ipmiIPMBAddrType            = 0x01
	ipmiIPMBBroadcastAddrType   = 0x41

	ipmiResponseRecvType    = 1
	ipmiAsyncEventRecvType  = 2
	ipmiCmdRecvType         = 3

	ipmiBufSize = 1024
)

var (
	ioctlReceiveMsgTrunc = ioctl.IOWR(ipmiIOCMagic, 11, uintptr(unsafe.Sizeof(kernelRecv{})))
	ioctlSendCommand     = ioctl.IOR(ipmiIOCMagic, 13, uintptr(unsafe.Sizeof(kernelReq{})))
	ioctlSetGetsEvents   = ioctl.IOR(ipmiIOCMagic, 16, uintptr(unsafe.Sizeof(int32(0))))
)

// kernelAddr mirrors struct ipmi_addr: a discriminated union of
// system-interface and IPMB addressing, flattened to a fixed byte array the
// way the kernel ABI does it.
type kernelAddr struct {
	addrType int32
	channel  int16
	data     [30]byte // data[0]=slave_addr, data[1]=lun for IPMB variants
}

type kernelMsg struct {
	netfn   uint8
	cmd     uint8
	dataLen uint16
	data    unsafe.Pointer
}

type kernelReq struct {
	addr    *kernelAddr
	addrLen uint32
	msgid   int64
	msg     kernelMsg
}

type kernelRecv struct {
	recvType int32
	addr     *kernelAddr
	addrLen  uint32
	msgid    int64
	msg      kernelMsg
}

func packAddr(a ipmi.Address) kernelAddr {
	var ka kernelAddr
	ka.channel = int16(a.Channel)
	switch a.Type {
	case ipmi.AddrIPMB:
		ka.addrType = ipmiIPMBAddrType
		ka.data[0] = a.SlaveAddr
		ka.data[1] = a.LUN
	case ipmi.AddrIPMBBroadcast:
		ka.addrType = ipmiIPMBBroadcastAddrType
		ka.data[0] = a.SlaveAddr
		ka.data[1] = a.LUN
	default:
		ka.addrType = ipmiSystemInterfaceAddrType
	}
	return ka
}

func unpackAddr(ka kernelAddr) ipmi.Address {
	switch ka.addrType {
	case ipmiIPMBAddrType:
		return ipmi.IPMBAddr(uint8(ka.channel), ka.data[0], ka.data[1])
	case ipmiIPMBBroadcastAddrType:
		return ipmi.IPMBBroadcast(uint8(ka.channel), ka.data[0], ka.data[1])
	default:
		return ipmi.SystemInterface(uint8(ka.channel))
	}
}

// ioctlCharDevice is the production CharDevice, talking to the OpenIPMI
// driver through the ioctl ABI.
type ioctlCharDevice struct {
	f *os.File
}

// OpenCharDevice tries the three conventional device paths, in order, for
// minor number n (§6 of the spec).
func OpenCharDevice(n int) (CharDevice, error) {
	var lastErr error
	for _, path := range deviceCandidates(n) {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err == nil {
			return &ioctlCharDevice{f: f}, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: no ipmi character device found: %v", ipmi.ErrIO, lastErr)
}

func (d *ioctlCharDevice) Fd() int {
	return int(d.f.Fd())
}

func (d *ioctlCharDevice) ioctlReq(name uintptr, req *kernelReq) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), name, uintptr(unsafe.Pointer(req)))
	runtime.KeepAlive(req)
	if errno != 0 {
		return errno
	}
	return nil
}

func (d *ioctlCharDevice) ioctlRecv(name uintptr, recv *kernelRecv) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), name, uintptr(unsafe.Pointer(recv)))
	runtime.KeepAlive(recv)
	if errno != 0 {
		return errno
	}
	return nil
}

func (d *ioctlCharDevice) send(addr ipmi.Address, msg ipmi.Message, token int64) error {
	ka := packAddr(addr)
	req := &kernelReq{
		addr:    &ka,
		addrLen: uint32(unsafe.Sizeof(ka)),
		msgid:   token,
		msg: kernelMsg{
			netfn:   uint8(msg.NetFn),
			cmd:     msg.Cmd,
			dataLen: uint16(len(msg.Data)),
		},
	}
	if len(msg.Data) > 0 {
		req.msg.data = unsafe.Pointer(&msg.Data[0])
	}
	if err := d.ioctlReq(ioctlSendCommand, req); err != nil {
		return fmt.Errorf("%w: send_command: %v", ipmi.ErrIO, err)
	}
	return nil
}

func (d *ioctlCharDevice) SendCommand(addr ipmi.Address, msg ipmi.Message, token int64) error {
	return d.send(addr, msg, token)
}

func (d *ioctlCharDevice) SendResponse(addr ipmi.Address, msg ipmi.Message, seq int64) error {
	return d.send(addr, msg, seq)
}

func (d *ioctlCharDevice) Recv() (RecvKind, ipmi.Address, int64, ipmi.Message, bool, error) {
	var ka kernelAddr
	buf := make([]byte, ipmiBufSize)
	recv := &kernelRecv{
		addr:    &ka,
		addrLen: uint32(unsafe.Sizeof(ka)),
		msg: kernelMsg{
			dataLen: ipmiBufSize,
			data:    unsafe.Pointer(&buf[0]),
		},
	}

	err := d.ioctlRecv(ioctlReceiveMsgTrunc, recv)
	truncated := errors.Is(err, unix.EMSGSIZE)
	if err != nil && !truncated {
		return 0, ipmi.Address{}, 0, ipmi.Message{}, false, fmt.Errorf("%w: receive_msg_trunc: %v", ipmi.ErrIO, err)
	}

	var kind RecvKind
	switch recv.recvType {
	case ipmiResponseRecvType:
		kind = KindResponse
	case ipmiAsyncEventRecvType:
		kind = KindEvent
	case ipmiCmdRecvType:
		kind = KindCommand
	default:
		kind = KindResponse
	}

	data := buf[:recv.msg.dataLen:recv.msg.dataLen]
	msg := ipmi.Message{NetFn: ipmi.NetFn(recv.msg.netfn), Cmd: recv.msg.cmd, Data: data}
	return kind, unpackAddr(ka), recv.msgid, msg, truncated, nil
}

// SetEventsEnabled issues IPMICTL_SET_GETS_EVENTS_CMD, the kernel control
// operation toggling asynchronous event delivery on this file descriptor.
func (d *ioctlCharDevice) SetEventsEnabled(enabled bool) error {
	var flag int32
	if enabled {
		flag = 1
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), ioctlSetGetsEvents, uintptr(unsafe.Pointer(&flag)))
	runtime.KeepAlive(&flag)
	if errno != 0 {
		return fmt.Errorf("%w: set_gets_events: %v", ipmi.ErrIO, errno)
	}
	return nil
}

func (d *ioctlCharDevice) Close() error {
	return d.f.Close()
}
