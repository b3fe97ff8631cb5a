// Package discovery drives a freshly opened connection through Get Device
// ID, SDR repository probing, channel-info resolution, and an optional
// IPMB bus scan, advancing a state machine exactly per §4.3 of the spec.
package discovery

import (
	"context"
	"fmt"

	"github.com/qmuntal/stateless"

	"ipmicore/ipmi"
	"ipmicore/mc"
	"ipmicore/sdr"
	"ipmicore/transport"
)

const (
	netFnApp = ipmi.NetFn(0x06)

	cmdGetDeviceID       = 0x01
	cmdGetSDRRepoInfo    = 0x20
	cmdGetDeviceSDRInfo  = 0x22
	cmdGetChannelInfo    = 0x42

	numChannelsDefault = 8
)

// Config parameterizes one Engine: whether to bus-scan after reaching
// Operational, how many channels to probe, and the user hooks the spec
// names (setup-error callback, new-MC hook).
type Config struct {
	DoBusScan          bool
	NumChannelsToProbe int
	OnSetupError       func(err error)
	NewMCHook          func(m *mc.MC)
}

// Engine ties a transport.Connection, an mc.BMC, and the discovery state
// machine together. One Engine drives exactly one BMC from Dead to
// Operational (or TearingDown on fatal error).
type Engine struct {
	bmc  *mc.BMC
	conn *transport.Connection
	cfg  Config
	sm   *stateless.StateMachine

	cache *presenceCache

	deviceID       mc.DeviceID
	scanChannel    uint8
	scanAddr       uint8
}

// NewEngine returns an Engine ready to drive bmc's discovery over conn.
func NewEngine(bmc *mc.BMC, conn *transport.Connection, cfg Config) *Engine {
	if cfg.NumChannelsToProbe <= 0 {
		cfg.NumChannelsToProbe = numChannelsDefault
	}

	e := &Engine{bmc: bmc, conn: conn, cfg: cfg, cache: newPresenceCache()}

	guards := discoveryGuards{
		sdrRepoSupport: boolGuard(func() bool {
			return e.deviceID.Capabilities.SDRRepo
		}),
		sensorDeviceOnly: boolGuard(func() bool {
			return !e.deviceID.Capabilities.SDRRepo && e.deviceID.Capabilities.SensorDevice
		}),
		neitherSDRNorSensor: boolGuard(func() bool {
			return !e.deviceID.Capabilities.SDRRepo && !e.deviceID.Capabilities.SensorDevice
		}),
		providesDeviceSDRs: boolGuard(func() bool {
			return e.deviceID.ProvidesDeviceSDRs
		}),
		notProvidesDeviceSDRs: boolGuard(func() bool {
			return !e.deviceID.ProvidesDeviceSDRs
		}),
	}
	e.sm = newStateMachine(guards)
	e.sm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		e.bmc.State = fmt.Sprint(t.Destination)
	})

	return e
}

// State returns the engine's current discovery state.
func (e *Engine) State() State {
	return e.sm.MustState().(State)
}

// Start issues Get Device ID and begins the discovery sequence.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.sm.FireCtx(ctx, TriggerStart); err != nil {
		return err
	}
	return e.sendGetDeviceID(ctx, ipmi.SystemInterface(0))
}

func (e *Engine) sendGetDeviceID(ctx context.Context, addr ipmi.Address) error {
	req := ipmi.Message{NetFn: netFnApp, Cmd: cmdGetDeviceID}
	return e.conn.SendCommand(addr, req, func(resp ipmi.Message, err error) {
		if err != nil {
			e.fatal(ctx, err)
			return
		}
		if cc := resp.CompletionCode(); cc != ipmi.CCSuccess {
			e.fatal(ctx, fmt.Errorf("%w: get device id completion code %#x", ipmi.ErrProtocol, cc))
			return
		}
		id, perr := ParseDeviceID(resp.Data)
		if perr != nil {
			e.fatal(ctx, perr)
			return
		}
		e.deviceID = id
		if err := e.sm.FireCtx(ctx, TriggerDeviceIDOK); err != nil {
			e.fatal(ctx, err)
			return
		}
		e.advanceAfterDeviceID(ctx)
	})
}

func (e *Engine) advanceAfterDeviceID(ctx context.Context) {
	switch e.State() {
	case StateQueryingMainSDRs:
		e.sendGetSDRRepoInfo(ctx)
	case StateQueryingSensorSDRs:
		e.sendGetDeviceSDRInfo(ctx)
	case StateQueryingChannelInfo:
		e.beginChannelProbe(ctx)
	default:
		e.fatal(ctx, fmt.Errorf("%w: unexpected post-device-id state %v", ipmi.ErrProtocol, e.State()))
	}
}

func (e *Engine) sendGetSDRRepoInfo(ctx context.Context) {
	req := ipmi.Message{NetFn: netFnApp, Cmd: cmdGetSDRRepoInfo}
	err := e.conn.SendCommand(ipmi.SystemInterface(0), req, func(resp ipmi.Message, err error) {
		if err != nil || resp.CompletionCode() != ipmi.CCSuccess {
			_ = e.sm.FireCtx(ctx, TriggerMainSDRsErr)
			e.fatal(ctx, firstNonNil(err, fmt.Errorf("%w: get sdr repo info failed", ipmi.ErrProtocol)))
			return
		}
		if ferr := e.sm.FireCtx(ctx, TriggerMainSDRsOK); ferr != nil {
			e.fatal(ctx, ferr)
			return
		}
		switch e.State() {
		case StateQueryingSensorSDRs:
			e.sendGetDeviceSDRInfo(ctx)
		case StateQueryingChannelInfo:
			e.beginChannelProbe(ctx)
		}
	})
	if err != nil {
		e.fatal(ctx, err)
	}
}

func (e *Engine) sendGetDeviceSDRInfo(ctx context.Context) {
	req := ipmi.Message{NetFn: netFnApp, Cmd: cmdGetDeviceSDRInfo}
	err := e.conn.SendCommand(ipmi.SystemInterface(0), req, func(resp ipmi.Message, err error) {
		if err != nil || resp.CompletionCode() != ipmi.CCSuccess {
			_ = e.sm.FireCtx(ctx, TriggerSensorSDRsErr)
			e.fatal(ctx, firstNonNil(err, fmt.Errorf("%w: get device sdr info failed", ipmi.ErrProtocol)))
			return
		}
		if ferr := e.sm.FireCtx(ctx, TriggerSensorSDRsOK); ferr != nil {
			e.fatal(ctx, ferr)
			return
		}
		e.beginChannelProbe(ctx)
	})
	if err != nil {
		e.fatal(ctx, err)
	}
}

func (e *Engine) beginChannelProbe(ctx context.Context) {
	if e.deviceID.AtLeast15() {
		e.probeChannelsSequential(ctx, 0)
		return
	}
	e.synthesizeChannelsFromSDR(ctx)
}

func (e *Engine) synthesizeChannelsFromSDR(ctx context.Context) {
	var records []sdr.ChannelRecord
	if recs, ok := e.bmc.MainSDRs.Type14ChannelInfo(); ok {
		records = recs
	} else if recs, ok := e.bmc.Self().DeviceSDRs.Type14ChannelInfo(); ok {
		records = recs
	}
	table := channelsFromSDR14(records)
	e.bmc.Channels = table
	if len(records) > 0 {
		e.bmc.MsgIntType = records[0].MsgIntType
		e.bmc.EventMsgIntType = records[0].EventMsgIntType
	}
	e.finishChannelProbe(ctx)
}

func (e *Engine) probeChannelsSequential(ctx context.Context, ch int) {
	if ch >= e.cfg.NumChannelsToProbe || ch >= len(e.bmc.Channels) {
		e.finishChannelProbe(ctx)
		return
	}

	req := ipmi.Message{NetFn: netFnApp, Cmd: cmdGetChannelInfo, Data: []byte{uint8(ch)}}
	err := e.conn.SendCommand(ipmi.SystemInterface(0), req, func(resp ipmi.Message, err error) {
		if err != nil || resp.CompletionCode() != ipmi.CCSuccess {
			if ch == 0 {
				e.bmc.Channels[0] = mc.ChannelInfo{Medium: 1, Protocol: 1}
			}
			e.finishChannelProbe(ctx)
			return
		}
		e.bmc.Channels[ch] = parseChannelInfoResponse(resp.Data)
		e.probeChannelsSequential(ctx, ch+1)
	})
	if err != nil {
		e.fatal(ctx, err)
	}
}

func (e *Engine) finishChannelProbe(ctx context.Context) {
	if err := e.sm.FireCtx(ctx, TriggerChannelInfoDone); err != nil {
		e.fatal(ctx, err)
		return
	}
	if e.cfg.DoBusScan {
		e.startBusScan(ctx)
	}
}

func (e *Engine) fatal(ctx context.Context, err error) {
	if e.cfg.OnSetupError != nil {
		e.cfg.OnSetupError(err)
	}
	_ = e.sm.FireCtx(ctx, TriggerFatalError)
	e.teardown()
}

func (e *Engine) teardown() {
	_ = mc.CloseConnection(e.bmc.Self())
}

func firstNonNil(err error, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
