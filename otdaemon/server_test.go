// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package otdaemon

import (
	"encoding/binary"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openthread/ot-daemon/dataset"
	"github.com/openthread/ot-daemon/dispatcher"
	"github.com/openthread/ot-daemon/otstack"
	"github.com/openthread/ot-daemon/types"
)

const (
	attachDelay  = time.Second
	detachDelay  = 100 * time.Millisecond
	mgmtSetDelay = 50 * time.Millisecond
	// long enough for an attach including jitter
	attachTime = 2 * attachDelay
)

type stateEvent struct {
	state      types.OtDaemonState
	listenerId int64
}

type fakeCallback struct {
	states    []stateEvent
	enabled   []types.ThreadEnabledState
	bbr       []types.BackboneRouterState
	addresses [][]types.Ipv6AddressInfo
}

func (f *fakeCallback) OnStateChanged(state types.OtDaemonState, listenerId int64) {
	f.states = append(f.states, stateEvent{state: state, listenerId: listenerId})
}

func (f *fakeCallback) OnThreadEnabledChanged(state types.ThreadEnabledState) {
	f.enabled = append(f.enabled, state)
}

func (f *fakeCallback) OnBackboneRouterStateChanged(state types.BackboneRouterState) {
	f.bbr = append(f.bbr, state)
}

func (f *fakeCallback) OnAddressChanged(addresses []types.Ipv6AddressInfo) {
	f.addresses = append(f.addresses, addresses)
}

func (f *fakeCallback) lastState() types.OtDaemonState {
	return f.states[len(f.states)-1].state
}

// result records the terminal calls of one receiver.
type result struct {
	calls int
	err   error
}

func (r *result) receiver() StatusReceiver {
	return ReceiverFunc(func(err error) {
		r.calls++
		r.err = err
	})
}

func (r *result) code() types.OtError {
	return types.ErrorCode(r.err)
}

type testEnv struct {
	server *Server
	stack  *otstack.SimStack
	runner *dispatcher.VirtualRunner
	cb     *fakeCallback
}

func testSimConfig() *otstack.SimConfig {
	cfg := otstack.DefaultSimConfig()
	cfg.AttachDelay = attachDelay
	cfg.DetachDelay = detachDelay
	cfg.MgmtSetDelay = mgmtSetDelay
	cfg.Seed = 1
	return cfg
}

func newTestEnv(t *testing.T, enabled bool) *testEnv {
	runner := dispatcher.NewVirtualRunner()
	stack, err := otstack.NewSimStack(testSimConfig(), runner, nil)
	require.NoError(t, err)
	env := &testEnv{
		server: NewServer(ServerConfig{Runner: runner, Stack: stack, Now: runner.Now}),
		stack:  stack,
		runner: runner,
		cb:     &fakeCallback{},
	}
	env.server.Initialize(enabled, types.OtDaemonConfiguration{BorderRouterEnabled: true}, nil,
		types.MeshcopTxtAttributes{VendorName: "Acme", ModelName: "Router"}, env.cb, "")
	runner.Advance(0)
	return env
}

func testDataset(channel int) []byte {
	return dataset.Generate(rand.New(rand.NewSource(int64(channel))), channel).Bytes()
}

func testPendingDataset(channel int, delay uint32) []byte {
	ds := dataset.Generate(rand.New(rand.NewSource(int64(channel))), channel)
	ds.Set(dataset.TlvPendingTimestamp, binary.BigEndian.AppendUint64(nil, 2<<16))
	ds.Set(dataset.TlvDelayTimer, binary.BigEndian.AppendUint32(nil, delay))
	return ds.Bytes()
}

func (env *testEnv) join(t *testing.T, tlvs []byte) {
	var res result
	env.server.Join(tlvs, res.receiver())
	env.runner.Advance(attachTime)
	require.Equal(t, 1, res.calls)
	require.NoError(t, res.err)
	require.True(t, env.stack.GetDeviceRole().IsAttached())
}

func TestServer_Initialize(t *testing.T) {
	env := newTestEnv(t, true)

	assert.Equal(t, types.ThreadStateEnabled, env.server.threadEnabled)
	assert.Equal(t, []types.ThreadEnabledState{types.ThreadStateDisabled, types.ThreadStateEnabled},
		env.cb.enabled, "registration followed by the enable")
	require.NotEmpty(t, env.cb.states)
	assert.Equal(t, int64(-1), env.cb.states[0].listenerId)
	assert.True(t, env.stack.IsBorderAgentEnabled())

	name, _ := env.stack.GetBorderAgentMeshcopService()
	assert.Equal(t, "Acme Router", name)
	assert.Equal(t, uint8(16), env.stack.GetRouterUpgradeThreshold())
	assert.Equal(t, uint8(64), env.stack.GetLocalLeaderWeight())
}

func TestServer_InitializeDisabled(t *testing.T) {
	env := newTestEnv(t, false)
	assert.Equal(t, types.ThreadStateDisabled, env.server.threadEnabled)
	assert.False(t, env.stack.IsBorderAgentEnabled())

	var res result
	env.server.Join(testDataset(15), res.receiver())
	env.runner.Advance(0)
	assert.Equal(t, types.OT_ERROR_THREAD_DISABLED, res.code())
}

func TestServer_NotInitialized(t *testing.T) {
	runner := dispatcher.NewVirtualRunner()
	s := NewServer(ServerConfig{Runner: runner})
	cb := &fakeCallback{}
	s.Initialize(true, types.OtDaemonConfiguration{}, nil, types.MeshcopTxtAttributes{}, cb, "")
	runner.Advance(0)
	assert.Empty(t, cb.states)

	var enable, leave, countryCode result
	s.SetThreadEnabled(true, enable.receiver())
	s.Leave(false, leave.receiver())
	s.SetCountryCode("US", countryCode.receiver())
	runner.Advance(0)
	assert.Equal(t, types.OT_ERROR_INVALID_STATE, enable.code())
	assert.Equal(t, "OT is not initialized", types.ErrorMessage(enable.err))
	assert.Equal(t, types.OT_ERROR_INVALID_STATE, leave.code())
	assert.Equal(t, types.OT_ERROR_INVALID_STATE, countryCode.code())
}

func TestServer_JoinAttaches(t *testing.T) {
	env := newTestEnv(t, true)
	ds := testDataset(15)

	var res result
	env.server.Join(ds, res.receiver())
	env.runner.Advance(0)
	assert.Equal(t, 0, res.calls, "join completes on attach")
	assert.True(t, env.server.status().JoinPending)

	env.runner.Advance(attachTime)
	assert.Equal(t, 1, res.calls)
	assert.NoError(t, res.err)
	assert.False(t, env.server.status().JoinPending)

	st := env.cb.lastState()
	assert.True(t, st.DeviceRole.IsAttached())
	assert.True(t, st.IsInterfaceUp)
	assert.True(t, dataset.Equal(ds, st.ActiveDatasetTlvs))
}

func TestServer_JoinIdempotent(t *testing.T) {
	env := newTestEnv(t, true)
	ds := testDataset(15)
	env.join(t, ds)
	detaches := env.stack.DetachCount()

	// Same dataset in a different TLV order.
	parsed, err := dataset.Parse(ds)
	require.NoError(t, err)
	reordered := &dataset.Dataset{}
	for i := len(parsed.Tlvs) - 1; i >= 0; i-- {
		reordered.Tlvs = append(reordered.Tlvs, parsed.Tlvs[i])
	}

	var first, second result
	env.server.Join(ds, first.receiver())
	env.server.Join(reordered.Bytes(), second.receiver())
	env.runner.Advance(0)
	assert.Equal(t, 1, first.calls)
	assert.NoError(t, first.err)
	assert.Equal(t, 1, second.calls)
	assert.NoError(t, second.err)
	assert.Equal(t, detaches, env.stack.DetachCount(), "no detach for the same network")
}

func TestServer_JoinOtherNetworkDetachesFirst(t *testing.T) {
	env := newTestEnv(t, true)
	env.join(t, testDataset(15))
	detaches := env.stack.DetachCount()

	other := testDataset(20)
	env.join(t, other)
	assert.Equal(t, detaches+1, env.stack.DetachCount())
	active, err := env.stack.GetActiveDatasetTlvs()
	require.NoError(t, err)
	assert.True(t, dataset.Equal(other, active))
}

func TestServer_JoinSupersedeAbortsPrior(t *testing.T) {
	env := newTestEnv(t, true)

	var first, second result
	env.server.Join(testDataset(15), first.receiver())
	env.runner.Advance(0)
	env.server.Join(testDataset(20), second.receiver())
	env.runner.Advance(attachTime)

	assert.Equal(t, 1, first.calls)
	assert.Equal(t, types.OT_ERROR_ABORT, first.code())
	assert.Equal(t, 1, second.calls)
	assert.NoError(t, second.err)

	// Nothing else is delivered to the superseded receiver.
	env.runner.Advance(attachTime)
	assert.Equal(t, 1, first.calls)
}

func TestServer_JoinInvalidDataset(t *testing.T) {
	env := newTestEnv(t, true)

	var res result
	env.server.Join([]byte{0x00, 0x05, 0x01}, res.receiver())
	env.runner.Advance(0)
	assert.Equal(t, types.OT_ERROR_INVALID_ARGS, res.code())
	assert.Equal(t, "Failed to set Active Operational Dataset", types.ErrorMessage(res.err))
}

func TestServer_SetThreadEnabledIdempotent(t *testing.T) {
	env := newTestEnv(t, true)
	env.join(t, testDataset(15))
	detaches := env.stack.DetachCount()
	notifications := len(env.cb.enabled)

	var res result
	env.server.SetThreadEnabled(true, res.receiver())
	env.runner.Advance(0)
	assert.Equal(t, 1, res.calls)
	assert.NoError(t, res.err)
	assert.Equal(t, detaches, env.stack.DetachCount())
	assert.Len(t, env.cb.enabled, notifications)

	disabled := newTestEnv(t, false)
	var res2 result
	disabled.server.SetThreadEnabled(false, res2.receiver())
	disabled.runner.Advance(0)
	assert.Equal(t, 1, res2.calls)
	assert.NoError(t, res2.err)
	assert.Equal(t, 0, disabled.stack.DetachCount())
}

func TestServer_BusyWhileDisabling(t *testing.T) {
	env := newTestEnv(t, true)
	env.join(t, testDataset(15))

	var disable result
	env.server.SetThreadEnabled(false, disable.receiver())
	env.runner.Advance(0)
	require.Equal(t, types.ThreadStateDisabling, env.server.threadEnabled)
	assert.Equal(t, 0, disable.calls)

	var join, leave, migrate, enable result
	env.server.Join(testDataset(20), join.receiver())
	env.server.Leave(true, leave.receiver())
	env.server.ScheduleMigration(testPendingDataset(20, 1000), migrate.receiver())
	env.server.SetThreadEnabled(true, enable.receiver())
	env.runner.Advance(0)
	for _, r := range []*result{&join, &leave, &migrate, &enable} {
		assert.Equal(t, 1, r.calls)
		assert.Equal(t, types.OT_ERROR_BUSY, r.code())
		assert.Equal(t, "Thread is disabling", types.ErrorMessage(r.err))
	}

	env.runner.Advance(detachDelay)
	assert.Equal(t, 1, disable.calls)
	assert.NoError(t, disable.err)
	assert.Equal(t, types.ThreadStateDisabled, env.server.threadEnabled)
	assert.Equal(t, []types.ThreadEnabledState{types.ThreadStateDisabling, types.ThreadStateDisabled},
		env.cb.enabled[len(env.cb.enabled)-2:])
	assert.Equal(t, types.OtDeviceRoleDisabled, env.stack.GetDeviceRole())
	assert.False(t, env.stack.IsIp6Enabled())
}

func TestServer_SingleDetachForConcurrentLeaves(t *testing.T) {
	env := newTestEnv(t, true)
	env.join(t, testDataset(15))
	detaches := env.stack.DetachCount()

	var leave1, leave2, join result
	env.server.Leave(false, leave1.receiver())
	env.server.Leave(false, leave2.receiver())
	env.server.Join(testDataset(20), join.receiver())
	env.runner.Advance(0)
	assert.Len(t, env.server.leaveCallbacks, 3)
	assert.Equal(t, detaches+1, env.stack.DetachCount())

	env.runner.Advance(detachDelay)
	assert.Equal(t, 1, leave1.calls)
	assert.NoError(t, leave1.err)
	assert.Equal(t, 1, leave2.calls)
	assert.NoError(t, leave2.err)
	assert.Empty(t, env.server.leaveCallbacks)

	// The join rides the same detach and attaches to the new network afterwards.
	env.runner.Advance(attachTime)
	assert.Equal(t, 1, join.calls)
	assert.NoError(t, join.err)
	assert.Equal(t, detaches+1, env.stack.DetachCount())
}

func TestServer_LeaveAbortsPendingJoin(t *testing.T) {
	env := newTestEnv(t, true)

	var join, leave result
	env.server.Join(testDataset(15), join.receiver())
	env.runner.Advance(0)
	env.server.Leave(true, leave.receiver())
	env.runner.Advance(0)

	assert.Equal(t, types.OT_ERROR_ABORT, join.code())
	assert.Equal(t, "Aborted by leave/disable operation", types.ErrorMessage(join.err))
	assert.Equal(t, 1, leave.calls)
	assert.NoError(t, leave.err)

	_, err := env.stack.GetActiveDatasetTlvs()
	assert.Equal(t, types.OT_ERROR_NOT_FOUND, types.ErrorCode(err), "dataset erased")
}

func TestServer_LeaveWhileDisabled(t *testing.T) {
	env := newTestEnv(t, true)
	env.join(t, testDataset(15))

	var disable result
	env.server.SetThreadEnabled(false, disable.receiver())
	env.runner.Advance(detachDelay)
	require.NoError(t, disable.err)
	detaches := env.stack.DetachCount()

	var keep, erase result
	env.server.Leave(false, keep.receiver())
	env.runner.Advance(0)
	assert.NoError(t, keep.err)
	_, err := env.stack.GetActiveDatasetTlvs()
	assert.NoError(t, err)

	env.server.Leave(true, erase.receiver())
	env.runner.Advance(0)
	assert.Equal(t, 1, erase.calls)
	assert.NoError(t, erase.err)
	_, err = env.stack.GetActiveDatasetTlvs()
	assert.Error(t, err)
	assert.Equal(t, detaches, env.stack.DetachCount())
}

func TestServer_JoinDisableReenable(t *testing.T) {
	env := newTestEnv(t, true)
	ds := testDataset(15)
	env.join(t, ds)

	var disable result
	env.server.SetThreadEnabled(false, disable.receiver())
	env.runner.Advance(detachDelay)
	require.Equal(t, 1, disable.calls)
	require.NoError(t, disable.err)
	assert.Equal(t, types.OtDeviceRoleDisabled, env.stack.GetDeviceRole())

	var enable result
	env.server.SetThreadEnabled(true, enable.receiver())
	env.runner.Advance(0)
	assert.Equal(t, 1, enable.calls)
	assert.NoError(t, enable.err)

	env.runner.Advance(attachTime)
	assert.True(t, env.stack.GetDeviceRole().IsAttached(), "attaches again without a new join")
	active, err := env.stack.GetActiveDatasetTlvs()
	require.NoError(t, err)
	assert.True(t, dataset.Equal(ds, active))
	assert.True(t, env.cb.lastState().DeviceRole.IsAttached())
}

func TestServer_ScheduleMigration(t *testing.T) {
	env := newTestEnv(t, true)

	var detached result
	env.server.ScheduleMigration(testPendingDataset(20, 1000), detached.receiver())
	env.runner.Advance(0)
	assert.Equal(t, types.OT_ERROR_FAILED_PRECONDITION, detached.code())

	env.join(t, testDataset(15))

	var first, second result
	env.server.ScheduleMigration(testPendingDataset(20, 1000), first.receiver())
	env.server.ScheduleMigration(testPendingDataset(21, 1000), second.receiver())
	env.runner.Advance(0)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, types.OT_ERROR_BUSY, second.code())
	assert.Equal(t, "Failed to send MGMT_PENDING_SET.req", types.ErrorMessage(second.err))
	assert.Equal(t, 0, first.calls)
	assert.True(t, env.server.status().MigrationPending)

	env.runner.Advance(mgmtSetDelay)
	assert.Equal(t, 1, first.calls)
	assert.NoError(t, first.err)
	assert.False(t, env.server.status().MigrationPending)
	assert.NotEmpty(t, env.cb.lastState().PendingDatasetTlvs)
}

func TestServer_ScheduleMigrationRejected(t *testing.T) {
	env := newTestEnv(t, true)
	env.join(t, testDataset(15))

	var res result
	env.server.ScheduleMigration(testDataset(20), res.receiver())
	env.runner.Advance(mgmtSetDelay)
	assert.Equal(t, types.OT_ERROR_REJECTED, res.code())
	assert.Equal(t, "Failed to register Pending Dataset to leader", types.ErrorMessage(res.err))
}

func TestServer_DisableAbortsPendingMigration(t *testing.T) {
	cfg := testSimConfig()
	cfg.MgmtSetDelay = time.Second
	runner := dispatcher.NewVirtualRunner()
	stack, err := otstack.NewSimStack(cfg, runner, nil)
	require.NoError(t, err)
	s := NewServer(ServerConfig{Runner: runner, Stack: stack, Now: runner.Now})
	s.Initialize(true, types.OtDaemonConfiguration{}, nil, types.MeshcopTxtAttributes{}, &fakeCallback{}, "")

	var join, migrate, disable result
	s.Join(testDataset(15), join.receiver())
	runner.Advance(attachTime)
	require.NoError(t, join.err)

	s.ScheduleMigration(testPendingDataset(20, 1000), migrate.receiver())
	s.SetThreadEnabled(false, disable.receiver())
	runner.Advance(detachDelay)
	assert.Equal(t, types.OT_ERROR_ABORT, migrate.code())
	assert.NoError(t, disable.err)

	// The late answer of the leader is dropped.
	runner.Advance(2 * time.Second)
	assert.Equal(t, 1, migrate.calls)
}

func TestServer_ClientDied(t *testing.T) {
	env := newTestEnv(t, true)
	env.server.ClientDied(env.cb)
	env.runner.Advance(0)
	assert.False(t, env.server.status().ClientRegistered)

	n := len(env.cb.states)
	env.join(t, testDataset(15))
	assert.Len(t, env.cb.states, n, "no notifications after the client died")
}

func TestServer_Terminate(t *testing.T) {
	runner := dispatcher.NewVirtualRunner()
	terminated := false
	s := NewServer(ServerConfig{Runner: runner, Terminate: func() { terminated = true }})
	s.Terminate()
	runner.Advance(0)
	assert.True(t, terminated)
}

// detachRejectingStack fails every graceful detach request.
type detachRejectingStack struct {
	*otstack.SimStack
}

func (s detachRejectingStack) DetachGracefully(func()) error {
	return types.NewError(types.OT_ERROR_FAILED, "detach rejected")
}

func TestServer_DetachStartFailure(t *testing.T) {
	runner := dispatcher.NewVirtualRunner()
	sim, err := otstack.NewSimStack(testSimConfig(), runner, nil)
	require.NoError(t, err)
	s := NewServer(ServerConfig{Runner: runner, Stack: detachRejectingStack{sim}, Now: runner.Now})
	s.Initialize(true, types.OtDaemonConfiguration{}, nil, types.MeshcopTxtAttributes{}, &fakeCallback{}, "")
	runner.Advance(0)

	var join result
	s.Join(testDataset(15), join.receiver())
	runner.Advance(attachTime)
	require.NoError(t, join.err)
	require.True(t, sim.GetDeviceRole().IsAttached())

	// switching networks stops Thread instead of detaching gracefully
	var rejoin result
	s.Join(testDataset(16), rejoin.receiver())
	runner.Advance(attachTime)
	assert.Equal(t, 1, rejoin.calls)
	assert.NoError(t, rejoin.err)
	assert.True(t, sim.GetDeviceRole().IsAttached())

	var leave result
	s.Leave(false, leave.receiver())
	runner.Advance(0)
	assert.Equal(t, 1, leave.calls)
	assert.NoError(t, leave.err)
	assert.Equal(t, types.OtDeviceRoleDisabled, sim.GetDeviceRole())
	assert.Zero(t, s.status().LeaveCallbacksPending)

	var disable result
	s.SetThreadEnabled(false, disable.receiver())
	runner.Advance(0)
	assert.Equal(t, 1, disable.calls)
	assert.NoError(t, disable.err)
	assert.Equal(t, types.ThreadStateDisabled, s.threadEnabled)
	assert.Empty(t, s.leaveCallbacks)
}

func TestServer_ClientDiedStaleCallback(t *testing.T) {
	env := newTestEnv(t, true)
	newer := &fakeCallback{}
	env.server.RegisterStateCallback(newer, 7)
	env.runner.Advance(0)

	env.server.ClientDied(env.cb)
	env.runner.Advance(0)
	st := env.server.status()
	assert.True(t, st.ClientRegistered)
	assert.Equal(t, "Acme", st.MeshcopTxts.VendorName)

	n := len(newer.states)
	env.join(t, testDataset(15))
	assert.Greater(t, len(newer.states), n, "the newer callback still gets notifications")

	env.server.ClientDied(newer)
	env.runner.Advance(0)
	assert.False(t, env.server.status().ClientRegistered)
}
