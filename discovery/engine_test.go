package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"ipmicore/ipmi"
	"ipmicore/mc"
	"ipmicore/osdeps"
	"ipmicore/sdr"
	"ipmicore/transport"
)

// testCommandTimeout stands in for transport's unexported
// defaultCommandTimeout; it only needs to be at least as large, so that
// AdvanceTimers(testCommandTimeout) always fires a pending command's timer.
const testCommandTimeout = 6 * time.Second

func newEngineTestRig(t *testing.T) (*fakeDevice, *osdeps.FakePoller, *transport.Connection, *mc.BMC) {
	t.Helper()
	dev := newFakeDevice()
	poller := osdeps.NewFakePoller()
	conn, err := transport.NewConnection(dev, poller, nil)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	bmc := mc.NewBMC(ipmi.SystemInterface(0), conn)
	return dev, poller, conn, bmc
}

// engineDeviceIDBytes builds a Get Device ID response body with a chosen
// ipmi-version byte (major in the low nibble, minor in the high nibble) and
// capability byte, following the same layout as scenario1DeviceIDBytes.
func engineDeviceIDBytes(versionByte, capsByte byte) []byte {
	return []byte{
		0x00,       // completion code
		0x20,       // device_id
		0x01,       // device_rev
		0x80,       // device_available
		0x00,       // fw_minor
		versionByte,
		capsByte,
		0x00, 0x1B, 0xF2, // manufacturer id
		0x01, 0x00, // product id
	}
}

// engineChannelInfoBytes builds a minimal ok Get Channel Info response body
// (completion code, channel number, medium/xmit/recv_lun byte, protocol
// byte, then zeroed session support, vendor id, and aux info).
func engineChannelInfoBytes(medium, protocol uint8) []byte {
	return []byte{0x00, 0x00, medium, protocol, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
}

// driveLoop repeatedly looks at the most recently sent command and asks
// respond how to answer it — either a response message, or "no reply"
// (driven forward by firing the fake poller's timers instead of queuing a
// message). It stops as soon as a step produces no further SendCommand,
// meaning the engine has settled.
func driveLoop(t *testing.T, dev *fakeDevice, poller *osdeps.FakePoller, respond func(sent sentCmd) (ipmi.Message, bool)) {
	t.Helper()
	for i := 0; i < 500; i++ {
		before := dev.sentCount()
		sent, ok := dev.lastSent()
		if !ok {
			return
		}
		if msg, give := respond(sent); give {
			dev.queue(transport.KindResponse, sent.addr, sent.token, msg, false)
			poller.Fire(dev.Fd())
		} else {
			poller.AdvanceTimers(testCommandTimeout)
		}
		if dev.sentCount() == before {
			return
		}
	}
	t.Fatal("drive loop did not converge")
}

func TestEngineMinimalDiscoveryGE15GoesStraightToChannelInfo(t *testing.T) {
	dev, poller, conn, bmc := newEngineTestRig(t)
	e := NewEngine(bmc, conn, Config{NumChannelsToProbe: 1})

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	driveLoop(t, dev, poller, func(sent sentCmd) (ipmi.Message, bool) {
		switch sent.msg.Cmd {
		case cmdGetDeviceID:
			return ipmi.Message{NetFn: ipmi.ResponseNetFn(netFnApp), Cmd: cmdGetDeviceID, Data: engineDeviceIDBytes(0x51, 0x00)}, true
		case cmdGetChannelInfo:
			return ipmi.Message{NetFn: ipmi.ResponseNetFn(netFnApp), Cmd: cmdGetChannelInfo, Data: engineChannelInfoBytes(1, 1)}, true
		default:
			return ipmi.Message{}, false
		}
	})

	if e.State() != StateOperational {
		t.Fatalf("got state %v, want Operational", e.State())
	}
	if dev.sentCount() != 2 {
		t.Fatalf("got %d commands sent, want exactly 2 (device id, channel 0)", dev.sentCount())
	}
	if bmc.Channels[0].Medium != 1 || bmc.Channels[0].Protocol != 1 {
		t.Fatalf("got channel 0 = %+v", bmc.Channels[0])
	}
}

func TestEngineSubOnePointFiveSynthesizesChannelsFromSDRAndOverridesIntTypes(t *testing.T) {
	dev, poller, conn, bmc := newEngineTestRig(t)

	body := BuildChannelInfoSDR([9]mc.ChannelInfo{0: {Protocol: 1, XmitSupport: true}}, 0x01, 0x02)
	raw := append([]byte{0x00, 0x00, 0x51, sdr.RecordTypeChannelInfo, byte(len(body))}, body...)
	if err := bmc.MainSDRs.Add(raw); err != nil {
		t.Fatalf("Add: %v", err)
	}

	e := NewEngine(bmc, conn, Config{NumChannelsToProbe: 1})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	driveLoop(t, dev, poller, func(sent sentCmd) (ipmi.Message, bool) {
		if sent.msg.Cmd == cmdGetDeviceID {
			// caps=0x00 (neither SDR repo nor sensor device) + ipmi
			// version 1.0 routes straight to the <1.5 SDR-synthesis path.
			return ipmi.Message{NetFn: ipmi.ResponseNetFn(netFnApp), Cmd: cmdGetDeviceID, Data: engineDeviceIDBytes(0x01, 0x00)}, true
		}
		return ipmi.Message{}, false
	})

	if e.State() != StateOperational {
		t.Fatalf("got state %v, want Operational", e.State())
	}
	if dev.sentCount() != 1 {
		t.Fatalf("got %d commands sent, want exactly 1 (the <1.5 path issues no Get Channel Info)", dev.sentCount())
	}
	if bmc.MsgIntType != 0x01 || bmc.EventMsgIntType != 0x02 {
		t.Fatalf("got msg_int_type=%#x event_msg_int_type=%#x, want 0x01/0x02 from the decoded SDR", bmc.MsgIntType, bmc.EventMsgIntType)
	}
	if !bmc.Channels[0].XmitSupport || bmc.Channels[0].Protocol != 1 {
		t.Fatalf("got channel 0 = %+v", bmc.Channels[0])
	}
}

func TestEngineChannelProbeErrorAtChannelZeroSynthesizesDefault(t *testing.T) {
	dev, poller, conn, bmc := newEngineTestRig(t)
	e := NewEngine(bmc, conn, Config{NumChannelsToProbe: 1})

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	driveLoop(t, dev, poller, func(sent sentCmd) (ipmi.Message, bool) {
		switch sent.msg.Cmd {
		case cmdGetDeviceID:
			return ipmi.Message{NetFn: ipmi.ResponseNetFn(netFnApp), Cmd: cmdGetDeviceID, Data: engineDeviceIDBytes(0x51, 0x00)}, true
		case cmdGetChannelInfo:
			return ipmi.Message{NetFn: ipmi.ResponseNetFn(netFnApp), Cmd: cmdGetChannelInfo, Data: []byte{0xC1}}, true
		default:
			return ipmi.Message{}, false
		}
	})

	if e.State() != StateOperational {
		t.Fatalf("got state %v, want Operational even with a failed channel 0 probe", e.State())
	}
	if bmc.Channels[0].Medium != 1 || bmc.Channels[0].Protocol != 1 {
		t.Fatalf("expected a synthesized default IPMB channel at slot 0, got %+v", bmc.Channels[0])
	}
	if bmc.MsgIntType != 0xFF || bmc.EventMsgIntType != 0xFF {
		t.Fatalf("got msg_int_type=%#x event_msg_int_type=%#x, want both 0xFF (the ≥1.5 Get Channel Info path never sets them)", bmc.MsgIntType, bmc.EventMsgIntType)
	}
}

func TestEngineBusScanDiscoversOneNewSatelliteMC(t *testing.T) {
	dev, poller, conn, bmc := newEngineTestRig(t)
	e := NewEngine(bmc, conn, Config{NumChannelsToProbe: 1, DoBusScan: true})

	var discovered []*mc.MC
	e.cfg.NewMCHook = func(m *mc.MC) { discovered = append(discovered, m) }

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const satelliteAddr = 0x24
	driveLoop(t, dev, poller, func(sent sentCmd) (ipmi.Message, bool) {
		switch sent.msg.Cmd {
		case cmdGetDeviceID:
			if sent.addr.Type == ipmi.AddrSystemInterface || sent.addr.SlaveAddr == satelliteAddr {
				return ipmi.Message{NetFn: ipmi.ResponseNetFn(netFnApp), Cmd: cmdGetDeviceID, Data: engineDeviceIDBytes(0x51, 0x00)}, true
			}
			return ipmi.Message{}, false // no satellite at this address
		case cmdGetChannelInfo:
			return ipmi.Message{NetFn: ipmi.ResponseNetFn(netFnApp), Cmd: cmdGetChannelInfo, Data: engineChannelInfoBytes(1, 1)}, true
		case cmdGetDeviceSDRInfo:
			return ipmi.Message{NetFn: ipmi.ResponseNetFn(netFnApp), Cmd: cmdGetDeviceSDRInfo, Data: []byte{0x00, 0x01, 0x00, 0x00}}, true
		default:
			return ipmi.Message{}, false
		}
	})

	if e.State() != StateOperational {
		t.Fatalf("got state %v, want Operational", e.State())
	}
	sats := bmc.MCs()
	if len(sats) != 1 {
		t.Fatalf("got %d satellites, want exactly 1", len(sats))
	}
	want := ipmi.IPMBAddr(0, satelliteAddr, 0)
	if !sats[0].Addr.Equal(want) {
		t.Fatalf("got satellite addr %v, want %v", sats[0].Addr, want)
	}
	if sats[0].DeviceSDRs == nil {
		t.Fatal("expected the discovered satellite to have a (possibly empty) DeviceSDRs repository")
	}
	if len(discovered) != 1 || discovered[0] != sats[0] {
		t.Fatalf("expected NewMCHook to fire exactly once for the discovered satellite")
	}

	sdrFetches := 0
	for _, s := range dev.sent {
		if s.msg.Cmd == cmdGetDeviceSDRInfo && s.addr.Equal(want) {
			sdrFetches++
		}
	}
	if sdrFetches != 1 {
		t.Fatalf("expected exactly one Get Device SDR Info sent to the new satellite, got %d", sdrFetches)
	}
}

func TestEngineDeviceIDTimeoutTearsDownTheConnection(t *testing.T) {
	_, poller, conn, bmc := newEngineTestRig(t)

	var setupErr error
	e := NewEngine(bmc, conn, Config{
		OnSetupError: func(err error) { setupErr = err },
	})

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	poller.AdvanceTimers(testCommandTimeout)

	if !errors.Is(setupErr, ipmi.ErrTimeout) {
		t.Fatalf("got setup error %v, want ErrTimeout", setupErr)
	}
	if e.State() != StateTearingDown {
		t.Fatalf("got state %v, want TearingDown", e.State())
	}

	err := conn.SendCommand(ipmi.SystemInterface(0), ipmi.Message{}, func(ipmi.Message, error) {})
	if !errors.Is(err, ipmi.ErrInvalidArgument) {
		t.Fatalf("expected the connection to be closed by teardown, got %v", err)
	}
}
