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

package otstack

import (
	"context"
	"encoding/binary"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openthread/ot-daemon/dataset"
	"github.com/openthread/ot-daemon/dispatcher"
	"github.com/openthread/ot-daemon/settings"
	"github.com/openthread/ot-daemon/types"
)

func testSimConfig() *SimConfig {
	cfg := DefaultSimConfig()
	cfg.AttachDelay = time.Second
	cfg.DetachDelay = 100 * time.Millisecond
	cfg.MgmtSetDelay = 50 * time.Millisecond
	cfg.Seed = 1
	return cfg
}

type flagRecorder struct {
	flags types.OtChangedFlags
	calls int
}

func newTestStack(t *testing.T, store *settings.Namespace) (*SimStack, *dispatcher.VirtualRunner, *flagRecorder) {
	runner := dispatcher.NewVirtualRunner()
	s, err := NewSimStack(testSimConfig(), runner, store)
	require.NoError(t, err)
	rec := &flagRecorder{}
	s.SetCallbacks(Callbacks{StateChanged: func(flags types.OtChangedFlags) {
		rec.flags |= flags
		rec.calls++
	}})
	return s, runner, rec
}

func testDataset(channel int) []byte {
	return dataset.Generate(rand.New(rand.NewSource(7)), channel).Bytes()
}

func startThread(t *testing.T, s *SimStack, runner *dispatcher.VirtualRunner) {
	require.NoError(t, s.SetActiveDatasetTlvs(testDataset(15)))
	require.NoError(t, s.SetIp6Enabled(true))
	require.NoError(t, s.SetThreadEnabled(true))
	runner.Advance(2 * time.Second)
	require.Equal(t, types.OtDeviceRoleLeader, s.GetDeviceRole())
}

func TestSimStack_Attach(t *testing.T) {
	s, runner, rec := newTestStack(t, nil)

	assert.Error(t, s.SetThreadEnabled(true))
	require.NoError(t, s.SetIp6Enabled(true))
	err := s.SetThreadEnabled(true)
	assert.Equal(t, types.OT_ERROR_INVALID_STATE, types.ErrorCode(err))

	require.NoError(t, s.SetActiveDatasetTlvs(testDataset(15)))
	require.NoError(t, s.SetThreadEnabled(true))
	assert.Equal(t, types.OtDeviceRoleDetached, s.GetDeviceRole())

	// changes of one task are delivered in a single notification
	runner.RunUntilIdle()
	assert.Equal(t, 1, rec.calls)
	assert.True(t, rec.flags.Has(types.OT_CHANGED_ACTIVE_DATASET|types.OT_CHANGED_THREAD_ROLE|
		types.OT_CHANGED_THREAD_NETIF_STATE))

	rec.flags = 0
	runner.Advance(2 * time.Second)
	assert.Equal(t, types.OtDeviceRoleLeader, s.GetDeviceRole())
	assert.True(t, rec.flags.Has(types.OT_CHANGED_THREAD_ROLE|types.OT_CHANGED_THREAD_PARTITION_ID))
	assert.NotEqual(t, types.InvalidRloc16, s.rloc16)

	err = s.SetIp6Enabled(false)
	assert.Equal(t, types.OT_ERROR_INVALID_STATE, types.ErrorCode(err))
	assert.Len(t, s.GetUnicastAddresses(), 3)
}

func TestSimStack_DetachGracefully(t *testing.T) {
	s, runner, _ := newTestStack(t, nil)
	startThread(t, s, runner)

	done := 0
	require.NoError(t, s.DetachGracefully(func() { done++ }))
	err := s.DetachGracefully(func() { done++ })
	assert.Equal(t, types.OT_ERROR_BUSY, types.ErrorCode(err))

	runner.Advance(50 * time.Millisecond)
	assert.Equal(t, 0, done)
	runner.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, done)
	assert.Equal(t, types.OtDeviceRoleDisabled, s.GetDeviceRole())
	assert.Equal(t, 1, s.DetachCount())

	// not attached: completes without delay
	require.NoError(t, s.DetachGracefully(func() { done++ }))
	runner.Advance(0)
	assert.Equal(t, 2, done)
}

func pendingDataset(channel int, delay uint32) []byte {
	ds := dataset.Generate(rand.New(rand.NewSource(7)), channel)
	ds.Set(dataset.TlvPendingTimestamp, binary.BigEndian.AppendUint64(nil, 2<<16))
	ds.Set(dataset.TlvDelayTimer, binary.BigEndian.AppendUint32(nil, delay))
	return ds.Bytes()
}

func TestSimStack_MgmtPendingSet(t *testing.T) {
	s, runner, rec := newTestStack(t, nil)

	err := s.SendMgmtPendingSet(pendingDataset(20, 1000), func(error) {})
	assert.Equal(t, types.OT_ERROR_INVALID_STATE, types.ErrorCode(err))

	startThread(t, s, runner)

	var results []error
	require.NoError(t, s.SendMgmtPendingSet(pendingDataset(20, 1000), func(err error) { results = append(results, err) }))
	err = s.SendMgmtPendingSet(pendingDataset(20, 1000), func(err error) { results = append(results, err) })
	assert.Equal(t, types.OT_ERROR_BUSY, types.ErrorCode(err))

	runner.Advance(100 * time.Millisecond)
	require.Len(t, results, 1)
	assert.NoError(t, results[0])
	_, err = s.GetPendingDatasetTlvs()
	assert.NoError(t, err)

	rec.flags = 0
	runner.Advance(time.Second)
	_, err = s.GetPendingDatasetTlvs()
	assert.Equal(t, types.OT_ERROR_NOT_FOUND, types.ErrorCode(err))
	active, err := s.GetActiveDatasetTlvs()
	require.NoError(t, err)
	ds, err := dataset.Parse(active)
	require.NoError(t, err)
	ch, _ := ds.Channel()
	assert.Equal(t, 20, ch)
	assert.True(t, rec.flags.Has(types.OT_CHANGED_ACTIVE_DATASET|types.OT_CHANGED_PENDING_DATASET))
}

func TestSimStack_MgmtPendingSetRejected(t *testing.T) {
	s, runner, _ := newTestStack(t, nil)
	startThread(t, s, runner)

	var result error
	require.NoError(t, s.SendMgmtPendingSet(testDataset(20), func(err error) { result = err }))
	runner.Advance(100 * time.Millisecond)
	assert.Equal(t, types.OT_ERROR_REJECTED, types.ErrorCode(result))
}

func TestSimStack_SettingsSurviveRestart(t *testing.T) {
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.db"), settings.DefaultConfig())
	require.NoError(t, err)
	defer store.Close()

	s, runner, _ := newTestStack(t, store.Namespace("ot"))
	require.NoError(t, s.SetActiveDatasetTlvs(testDataset(15)))
	require.NoError(t, s.SetRegion(uint16('U')<<8|uint16('S')))
	runner.RunUntilIdle()
	require.NoError(t, s.Close())

	s2, _, _ := newTestStack(t, store.Namespace("ot"))
	active, err := s2.GetActiveDatasetTlvs()
	require.NoError(t, err)
	assert.True(t, dataset.Equal(testDataset(15), active))

	require.NoError(t, s2.ErasePersistentInfo())
	_, err = s2.GetActiveDatasetTlvs()
	assert.Equal(t, types.OT_ERROR_NOT_FOUND, types.ErrorCode(err))

	s3, _, _ := newTestStack(t, store.Namespace("ot"))
	_, err = s3.GetActiveDatasetTlvs()
	assert.Error(t, err)
	region, err := s3.GetRegion()
	require.NoError(t, err)
	assert.Equal(t, uint16('U')<<8|uint16('S'), region)

	keys, err := store.Keys(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestSimStack_ErasePersistentInfoWhileRunning(t *testing.T) {
	s, runner, _ := newTestStack(t, nil)
	startThread(t, s, runner)
	err := s.ErasePersistentInfo()
	assert.Equal(t, types.OT_ERROR_INVALID_STATE, types.ErrorCode(err))
}

func TestSimStack_EphemeralKey(t *testing.T) {
	s, runner, _ := newTestStack(t, nil)
	changes := 0
	s.SetCallbacks(Callbacks{EphemeralKeyChanged: func() { changes++ }})

	err := s.SetEphemeralKey("123456789", time.Minute)
	assert.Equal(t, types.OT_ERROR_INVALID_STATE, types.ErrorCode(err))

	s.SetBorderAgentEnabled(true)
	err = s.SetEphemeralKey("12345", time.Minute)
	assert.Equal(t, types.OT_ERROR_INVALID_ARGS, types.ErrorCode(err))
	err = s.SetEphemeralKey("123456789", time.Hour)
	assert.Equal(t, types.OT_ERROR_INVALID_ARGS, types.ErrorCode(err))

	require.NoError(t, s.SetEphemeralKey("123456789", time.Minute))
	assert.True(t, s.IsEphemeralKeyActive())
	s.SimulateEphemeralKeyConnection()
	assert.True(t, s.IsEphemeralKeyInUse())

	runner.Advance(time.Minute)
	assert.False(t, s.IsEphemeralKeyActive())
	assert.False(t, s.IsEphemeralKeyInUse())
	assert.Equal(t, 3, changes)
}

func TestSimStack_MulticastListeners(t *testing.T) {
	s, runner, _ := newTestStack(t, nil)
	var events []string
	s.SetCallbacks(Callbacks{MulticastListener: func(event MulticastListenerEvent, address string) {
		events = append(events, event.String()+" "+address)
	}})
	s.AddMulticastListener("ff05::1234")
	s.AddMulticastListener("ff05::1234")
	s.RemoveMulticastListener("ff05::1234")
	s.RemoveMulticastListener("ff05::5678")
	runner.RunUntilIdle()
	assert.Equal(t, []string{"Added ff05::1234", "Removed ff05::1234"}, events)
	assert.Empty(t, s.GetMulticastListeners())
}

func runCli(s *SimStack, line string) []string {
	var chunks []string
	s.CliInputLine(line, func(chunk string) { chunks = append(chunks, chunk) })
	return chunks
}

func TestSimStack_Cli(t *testing.T) {
	s, runner, _ := newTestStack(t, nil)

	assert.Equal(t, []string{"disabled\r\n", "Done\r\n", "> "}, runCli(s, "state"))
	assert.Equal(t, []string{"Error 35: InvalidCommand\r\n", "> "}, runCli(s, "foo bar"))
	assert.Equal(t, []string{"Error 23: NotFound\r\n", "> "}, runCli(s, "dataset active"))

	startThread(t, s, runner)
	assert.Equal(t, []string{"leader\r\n", "Done\r\n", "> "}, runCli(s, "state"))

	out := runCli(s, "dataset active -x")
	require.Len(t, out, 3)
	ds, err := dataset.ParseHex(strings.TrimSuffix(out[0], "\r\n"))
	require.NoError(t, err)
	assert.True(t, dataset.Equal(testDataset(15), ds.Bytes()))

	out = runCli(s, "dataset active")
	assert.Contains(t, out, "Channel: 15\r\n")

	out = runCli(s, "ipaddr -v")
	assert.Len(t, out, 5)
	assert.Contains(t, out[0], "origin:thread")

	for _, cmd := range []string{"srp server state", "srp server service", "leaderdata", "eidcache",
		"counters mac", "counters mle", "counters ip", "router table", "neighbor table", "netdata show",
		"version", "partitionid", "ifconfig", "region", "channel", "rloc16", "extaddr", "mode", "help"} {
		out := runCli(s, cmd)
		require.GreaterOrEqual(t, len(out), 2, cmd)
		assert.Equal(t, "Done\r\n", out[len(out)-2], cmd)
		assert.Equal(t, "> ", out[len(out)-1], cmd)
	}
}
