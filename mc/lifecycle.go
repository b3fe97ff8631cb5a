package mc

import "ipmicore/ipmi"

// CloseConnection implements §4.5: valid only against a BMC MC, never a
// satellite. Teardown order follows §4.3's Teardown step for the state this
// package holds: the BMC's device SDRs, the main SDRs, then the satellite MC
// list (each satellite's device SDRs are cleared as it is dropped), then the
// transport connection itself. Entity and sensor/control sets are an
// external collaborator's responsibility (§1) and are not touched here.
// Idempotent: closing an already-closed BMC is a no-op.
func CloseConnection(m *MC) error {
	if m == nil || !m.IsBMC {
		return ipmi.ErrInvalidArgument
	}

	b := m.bmc
	b.mcListMu.Lock()
	if b.closed {
		b.mcListMu.Unlock()
		return nil
	}
	b.closed = true
	b.mcListMu.Unlock()

	b.self.DeviceSDRs.Clear()
	b.MainSDRs.Clear()

	b.mcListMu.Lock()
	satellites := b.mcList
	b.mcList = nil
	b.mcListMu.Unlock()

	for _, sat := range satellites {
		sat.InBMCList = false
		if sat.DeviceSDRs != nil {
			sat.DeviceSDRs.Clear()
		}
	}

	if b.Conn == nil {
		return nil
	}
	return b.Conn.Close()
}
