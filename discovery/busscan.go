package discovery

import (
	"context"

	"ipmicore/ipmi"
	"ipmicore/mc"
	"ipmicore/sdr"
)

// startBusScan begins the IPMB bus scan described in §4.3: for each
// channel whose medium is IPMB, walk slave addresses upward from
// scanStart, broadcasting Get Device ID and letting each response advance
// the cursor. TryStartBusScan's reentrancy guard means calling this twice
// concurrently is a safe no-op.
func (e *Engine) startBusScan(ctx context.Context) {
	if !e.bmc.TryStartBusScan() {
		return
	}
	e.cache.advance()

	for ch := range e.bmc.Channels {
		if e.bmc.Channels[ch].Medium != 1 { // 1 == IPMB, per defaultIPMBChannel
			continue
		}
		e.scanChannel = uint8(ch)
		e.scanAddr = scanStart
		e.scanOneAddress(ctx)
		return
	}
	e.bmc.FinishBusScan()
}

// scanOneAddress probes e.scanAddr on e.scanChannel, then advances to the
// next address regardless of outcome — a failed send is treated the same
// as a no-reply timeout: keep walking until scanEnd before giving up
// (§4.3: "if a send fails, keep advancing until 0xEF before giving up").
func (e *Engine) scanOneAddress(ctx context.Context) {
	if isReservedSlaveAddr(e.scanAddr) {
		e.advanceScan(ctx)
		return
	}

	addr := ipmi.IPMBBroadcast(e.scanChannel, e.scanAddr, 0)
	req := ipmi.Message{NetFn: netFnApp, Cmd: cmdGetDeviceID}
	slaveAddr := e.scanAddr

	err := e.conn.SendCommand(addr, req, func(resp ipmi.Message, err error) {
		if err == nil && resp.CompletionCode() == ipmi.CCSuccess {
			e.onBusScanReply(slaveAddr, resp.Data)
		}
		e.advanceScan(ctx)
	})
	if err != nil {
		e.advanceScan(ctx)
	}
}

func (e *Engine) onBusScanReply(slaveAddr uint8, deviceIDData []byte) {
	e.cache.touch(slaveAddr)

	if slaveAddr == ipmi.BMCSlaveAddr {
		return // the BMC itself, already known
	}
	addr := ipmi.IPMBAddr(e.scanChannel, slaveAddr, 0)
	if _, known := e.bmc.Resolve(addr); known {
		return
	}

	id, err := ParseDeviceID(deviceIDData)
	if err != nil {
		return
	}

	m := &mc.MC{
		Addr:       addr,
		Channel:    e.scanChannel,
		McNum:      slaveAddr,
		DeviceID:   id,
		DeviceSDRs: sdr.NewMemRepository(),
	}
	e.fetchSatelliteDeviceSDRs(addr, m)
}

// fetchSatelliteDeviceSDRs issues Get Device SDR Info against a freshly
// discovered satellite, mirroring sendGetDeviceSDRInfo's round trip against
// the local BMC (§4.3: "allocate and fetch device SDRs" before announcing a
// new MC). The satellite is added to the BMC's list and announced once the
// round trip completes, whether or not it succeeded — a satellite that
// doesn't support device SDRs still gets added, with an empty DeviceSDRs
// repository.
func (e *Engine) fetchSatelliteDeviceSDRs(addr ipmi.Address, m *mc.MC) {
	req := ipmi.Message{NetFn: netFnApp, Cmd: cmdGetDeviceSDRInfo}
	err := e.conn.SendCommand(addr, req, func(ipmi.Message, error) {
		e.finishAddingSatellite(m)
	})
	if err != nil {
		e.finishAddingSatellite(m)
	}
}

func (e *Engine) finishAddingSatellite(m *mc.MC) {
	if err := e.bmc.AddMC(m); err != nil {
		return
	}
	if e.cfg.NewMCHook != nil {
		e.cfg.NewMCHook(m)
	}
}

func (e *Engine) advanceScan(ctx context.Context) {
	next, done := nextScanAddr(e.scanAddr)
	if done {
		e.bmc.FinishBusScan()
		return
	}
	e.scanAddr = next
	e.scanOneAddress(ctx)
}

// Rescan bumps the presence-cache generation and re-runs the bus scan,
// then evicts any MC whose last-seen generation has fallen two scans
// behind. This is opt-in: the default discovery flow never calls it.
func (e *Engine) Rescan(ctx context.Context) {
	e.startBusScan(ctx)
	for _, addr := range e.cache.stale() {
		mcAddr := ipmi.IPMBAddr(e.scanChannel, addr, 0)
		if e.bmc.RemoveMC(mcAddr) {
			e.cache.forget(addr)
		}
	}
}
