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

package otcli

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openthread/ot-daemon/dispatcher"
	"github.com/openthread/ot-daemon/otstack"
	"github.com/openthread/ot-daemon/types"
)

// fakeCli answers CLI commands from a table, like an ot-cli process with echo enabled.
type fakeCli struct {
	lock      sync.Mutex
	responses map[string][]string
	received  []string
}

func (f *fakeCli) set(cmd string, lines ...string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.responses[cmd] = lines
}

func (f *fakeCli) commands() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.received...)
}

func (f *fakeCli) serve(in io.Reader, out io.WriteCloser) {
	defer out.Close()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := scanner.Text()
		if cmd == "" {
			_, _ = io.WriteString(out, "\r\n> ")
			continue
		}
		f.lock.Lock()
		f.received = append(f.received, cmd)
		lines, ok := f.responses[cmd]
		f.lock.Unlock()

		var sb strings.Builder
		sb.WriteString(cmd + "\r\n")
		sb.WriteString("00:00:01.000 [I] Cli-----------: Input: " + cmd + "\r\n")
		if !ok {
			lines = []string{"Done"}
		}
		for _, l := range lines {
			sb.WriteString(l + "\r\n")
		}
		sb.WriteString("> ")
		_, _ = io.WriteString(out, sb.String())
	}
}

func newFakeStack(t *testing.T) (*Stack, *fakeCli, *dispatcher.VirtualRunner) {
	f := &fakeCli{responses: map[string][]string{
		"version":               {"OPENTHREAD/1.4.0; POSIX", "Done"},
		"state":                 {"disabled", "Done"},
		"ifconfig":              {"down", "Done"},
		"partitionid":           {"0", "Done"},
		"dataset active -x":     {"Error 23: NotFound"},
		"dataset pending -x":    {"Error 23: NotFound"},
		"bbr state":             {"Disabled", "Done"},
		"bbr mgmt mlr listener": {"Done"},
		"ba ephemeralkey":       {"inactive", "Done"},
		"channel supported":     {"0x7fff800", "Done"},
	}}
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	go f.serve(inR, outW)

	proc := NewPipeProcess("fake", inW, outR, nil)
	runner := dispatcher.NewVirtualRunner()
	cfg := DefaultConfig()
	cfg.CommandTimeout = 2 * time.Second
	s, err := NewStack(proc, cfg, runner)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
		_ = inR.Close()
	})
	return s, f, runner
}

func TestProcess_CommandErrors(t *testing.T) {
	s, f, _ := newFakeStack(t)

	_, err := s.GetActiveDatasetTlvs()
	assert.Equal(t, types.OT_ERROR_NOT_FOUND, types.ErrorCode(err))

	f.set("thread start", "Error 13: InvalidState")
	err = s.SetThreadEnabled(true)
	assert.Equal(t, types.OT_ERROR_INVALID_STATE, types.ErrorCode(err))

	assert.Equal(t, "OPENTHREAD/1.4.0; POSIX", s.GetVersion())
	assert.Equal(t, uint32(types.DefaultSupportedChannelMask), s.GetSupportedChannelMask())
}

func TestStack_PollDeliversChanges(t *testing.T) {
	s, f, runner := newFakeStack(t)

	var flags types.OtChangedFlags
	var events []string
	s.SetCallbacks(otstack.Callbacks{
		StateChanged: func(changed types.OtChangedFlags) { flags |= changed },
		MulticastListener: func(event otstack.MulticastListenerEvent, address string) {
			events = append(events, event.String()+" "+address)
		},
	})

	f.set("state", "leader", "Done")
	f.set("partitionid", "12345", "Done")
	f.set("ifconfig", "up", "Done")
	f.set("bbr mgmt mlr listener", "ff04::1234 300", "Done")
	runner.Advance(time.Second)

	assert.True(t, flags.Has(types.OT_CHANGED_THREAD_ROLE|types.OT_CHANGED_THREAD_PARTITION_ID|
		types.OT_CHANGED_THREAD_NETIF_STATE))
	assert.False(t, flags.Has(types.OT_CHANGED_ACTIVE_DATASET))
	assert.Equal(t, []string{"Added ff04::1234"}, events)
	assert.Equal(t, uint32(12345), s.GetPartitionId())
}

func TestStack_DetachGracefully(t *testing.T) {
	s, f, runner := newFakeStack(t)
	f.set("state", "router", "Done")

	done := false
	require.NoError(t, s.DetachGracefully(func() { done = true }))
	err := s.DetachGracefully(func() {})
	assert.Equal(t, types.OT_ERROR_BUSY, types.ErrorCode(err))

	runner.Advance(300 * time.Millisecond)
	assert.False(t, done)

	f.set("state", "disabled", "Done")
	runner.Advance(100 * time.Millisecond)
	assert.True(t, done)
	assert.Contains(t, f.commands(), "detach async")
}

func TestStack_CliInputLine(t *testing.T) {
	s, f, _ := newFakeStack(t)
	f.set("router table", "| ID | RLOC16 |", "+----+--------+", "Done")

	var chunks []string
	s.CliInputLine("router table", func(chunk string) { chunks = append(chunks, chunk) })
	assert.Equal(t, []string{"| ID | RLOC16 |\r\n", "+----+--------+\r\n", "Done\r\n", "> "}, chunks)
}

func TestParseIpAddr(t *testing.T) {
	info, ok := parseIpAddr("fd00:db8::ff:fe00:fc00 origin:thread plen:64 preferred:0 valid:1")
	require.True(t, ok)
	assert.Equal(t, types.Ipv6AddressInfo{Address: "fd00:db8::ff:fe00:fc00", PrefixLength: 64}, info)

	info, ok = parseIpAddr("fe80::1 origin:thread plen:64 preferred:1 valid:1")
	require.True(t, ok)
	assert.True(t, info.IsPreferred)

	info, ok = parseIpAddr("fd11:22::1 origin:slaac plen:48 preferred:1 valid:1")
	require.True(t, ok)
	assert.EqualValues(t, 48, info.PrefixLength)

	// out of range prefix lengths keep the default instead of wrapping
	info, ok = parseIpAddr("fd11:22::2 origin:slaac plen:300 preferred:1 valid:1")
	require.True(t, ok)
	assert.EqualValues(t, 64, info.PrefixLength)

	_, ok = parseIpAddr("")
	assert.False(t, ok)
}

func TestParseLeaderData(t *testing.T) {
	ld := parseLeaderData([]string{
		"Partition ID: 1077744240",
		"Weighting: 64",
		"Data Version: 109",
		"Stable Data Version: 211",
		"Leader Router ID: 60",
	})
	assert.Equal(t, otstack.LeaderData{
		PartitionId:       1077744240,
		Weighting:         64,
		DataVersion:       109,
		StableDataVersion: 211,
		LeaderRouterId:    60,
	}, ld)
}
