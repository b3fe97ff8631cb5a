package discovery

import (
	"context"

	"github.com/qmuntal/stateless"
)

// State and Trigger name the discovery state machine's nodes and edges,
// exactly matching spec.md's state diagram (§4.3).
type State string

const (
	StateDead                State = "dead"
	StateQueryingDeviceID     State = "querying_device_id"
	StateQueryingMainSDRs     State = "querying_main_sdrs"
	StateQueryingSensorSDRs   State = "querying_sensor_sdrs"
	StateQueryingChannelInfo  State = "querying_channel_info"
	StateOperational          State = "operational"
	StateTearingDown          State = "tearing_down"
)

type Trigger string

const (
	TriggerStart           Trigger = "start"
	TriggerDeviceIDOK      Trigger = "device_id_ok"
	TriggerDeviceIDErr     Trigger = "device_id_err"
	TriggerMainSDRsOK      Trigger = "main_sdrs_ok"
	TriggerMainSDRsErr     Trigger = "main_sdrs_err"
	TriggerSensorSDRsOK    Trigger = "sensor_sdrs_ok"
	TriggerSensorSDRsErr   Trigger = "sensor_sdrs_err"
	TriggerChannelInfoDone Trigger = "channel_info_done"
	TriggerFatalError      Trigger = "fatal_error"
)

// newStateMachine builds the discovery state machine with the exact
// transitions named in §4.3's happy-path diagram, plus the fatal-error
// transition to TearingDown available from every querying state. Guards
// (SDR_repo_support, sensor_device_support, provides_device_SDRs) are
// supplied by the caller via the guard* closures because they depend on
// the device ID just parsed, which only the Engine has at Fire time.
func newStateMachine(guards discoveryGuards) *stateless.StateMachine {
	sm := stateless.NewStateMachine(StateDead)

	sm.Configure(StateDead).
		Permit(TriggerStart, StateQueryingDeviceID)

	sm.Configure(StateQueryingDeviceID).
		Permit(TriggerDeviceIDOK, StateQueryingMainSDRs, guards.sdrRepoSupport).
		Permit(TriggerDeviceIDOK, StateQueryingSensorSDRs, guards.sensorDeviceOnly).
		Permit(TriggerDeviceIDOK, StateQueryingChannelInfo, guards.neitherSDRNorSensor).
		Permit(TriggerDeviceIDErr, StateTearingDown).
		Permit(TriggerFatalError, StateTearingDown)

	sm.Configure(StateQueryingMainSDRs).
		Permit(TriggerMainSDRsOK, StateQueryingSensorSDRs, guards.providesDeviceSDRs).
		Permit(TriggerMainSDRsOK, StateQueryingChannelInfo, guards.notProvidesDeviceSDRs).
		Permit(TriggerMainSDRsErr, StateTearingDown).
		Permit(TriggerFatalError, StateTearingDown)

	sm.Configure(StateQueryingSensorSDRs).
		Permit(TriggerSensorSDRsOK, StateQueryingChannelInfo).
		Permit(TriggerSensorSDRsErr, StateTearingDown).
		Permit(TriggerFatalError, StateTearingDown)

	sm.Configure(StateQueryingChannelInfo).
		Permit(TriggerChannelInfoDone, StateOperational).
		Permit(TriggerFatalError, StateTearingDown)

	sm.Configure(StateOperational).
		Permit(TriggerFatalError, StateTearingDown)

	sm.Configure(StateTearingDown)

	return sm
}

// discoveryGuards supplies the branch conditions the state diagram needs,
// evaluated against the Engine's current device ID / BMC state at the
// moment a trigger fires.
type discoveryGuards struct {
	sdrRepoSupport        stateless.GuardFunc
	sensorDeviceOnly      stateless.GuardFunc
	neitherSDRNorSensor   stateless.GuardFunc
	providesDeviceSDRs    stateless.GuardFunc
	notProvidesDeviceSDRs stateless.GuardFunc
}

func boolGuard(fn func() bool) stateless.GuardFunc {
	return func(_ context.Context, _ ...any) bool {
		return fn()
	}
}
