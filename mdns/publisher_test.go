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

package mdns

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openthread/ot-daemon/dispatcher"
	"github.com/openthread/ot-daemon/types"
)

type nsdRequest struct {
	op         string
	name       string
	listenerId int32
	receiver   NsdStatusReceiver
	txt        []types.DnsTxtAttribute
}

// fakeNsd records requests; the test answers them through the stored receivers.
type fakeNsd struct {
	requests []nsdRequest
	resets   int
}

func (f *fakeNsd) RegisterService(hostName, name, serviceType string, subTypes []string, port uint16,
	txt []types.DnsTxtAttribute, receiver NsdStatusReceiver, listenerId int32) {
	f.requests = append(f.requests, nsdRequest{op: "service", name: name + "." + serviceType,
		listenerId: listenerId, receiver: receiver, txt: txt})
}

func (f *fakeNsd) RegisterHost(name string, addresses []string, receiver NsdStatusReceiver, listenerId int32) {
	f.requests = append(f.requests, nsdRequest{op: "host", name: name, listenerId: listenerId, receiver: receiver})
}

func (f *fakeNsd) Unregister(receiver NsdStatusReceiver, listenerId int32) {
	f.requests = append(f.requests, nsdRequest{op: "unregister", listenerId: listenerId, receiver: receiver})
	receiver.OnSuccess()
}

func (f *fakeNsd) Reset() {
	f.resets++
}

type results struct {
	errs []error
}

func (r *results) cb(err error) {
	r.errs = append(r.errs, err)
}

func newTestPublisher() (*Publisher, *fakeNsd, *dispatcher.VirtualRunner, *[]State) {
	runner := dispatcher.NewVirtualRunner()
	var states []State
	p := NewPublisher(runner, func(s State) { states = append(states, s) })
	nsd := &fakeNsd{}
	p.SetNsdPublisher(nsd)
	return p, nsd, runner, &states
}

func TestPublisher_NotStarted(t *testing.T) {
	p := NewPublisher(dispatcher.NewVirtualRunner(), nil)
	assert.False(t, p.IsStarted())
	err := p.PublishService("", "ba", "_meshcop._udp", nil, 49191, nil, nil)
	assert.ErrorIs(t, err, ErrMdns)

	var r results
	p.UnpublishHost("host", r.cb)
	require.Len(t, r.errs, 1)
	assert.ErrorIs(t, r.errs[0], ErrMdns)
}

func TestPublisher_PublishService(t *testing.T) {
	p, nsd, runner, states := newTestPublisher()
	assert.Equal(t, []State{StateReady}, *states)

	txt, err := EncodeTxtData([]types.DnsTxtAttribute{{Name: "rv", Value: []byte("1")}, {Name: "flag"}})
	require.NoError(t, err)

	var r results
	require.NoError(t, p.PublishService("", "ba", "_meshcop._udp", nil, 49191, txt, r.cb))
	require.Len(t, nsd.requests, 1)
	assert.Equal(t, int32(0), nsd.requests[0].listenerId)
	assert.Equal(t, []types.DnsTxtAttribute{{Name: "rv", Value: []byte("1")}, {Name: "flag"}}, nsd.requests[0].txt)

	// identical registration waits for the first result
	require.NoError(t, p.PublishService("", "ba", "_meshcop._udp", nil, 49191, txt, r.cb))
	assert.Len(t, nsd.requests, 1)

	nsd.requests[0].receiver.OnSuccess()
	nsd.requests[0].receiver.OnError(3)
	runner.RunUntilIdle()
	assert.Equal(t, []error{nil, nil}, r.errs)

	// completed: resolves immediately
	require.NoError(t, p.PublishService("", "ba", "_meshcop._udp", nil, 49191, txt, r.cb))
	assert.Len(t, r.errs, 3)

	// differing registration replaces the old one
	require.NoError(t, p.PublishService("", "ba", "_meshcop._udp", nil, 49192, txt, r.cb))
	require.Len(t, nsd.requests, 3)
	assert.Equal(t, "unregister", nsd.requests[1].op)
	assert.Equal(t, int32(0), nsd.requests[1].listenerId)
	assert.Equal(t, "service", nsd.requests[2].op)
	nsd.requests[2].receiver.OnError(5)
	runner.RunUntilIdle()
	require.Len(t, r.errs, 4)
	assert.ErrorIs(t, r.errs[3], ErrMdns)
	assert.Equal(t, 1, p.ServiceCount())
}

func TestPublisher_UnpublishService(t *testing.T) {
	p, nsd, runner, _ := newTestPublisher()

	var r results
	p.UnpublishService("ba", "_meshcop._udp", r.cb)
	assert.Equal(t, []error{nil}, r.errs)
	assert.Empty(t, nsd.requests)

	require.NoError(t, p.PublishService("", "ba", "_meshcop._udp", nil, 49191, nil, nil))
	p.UnpublishService("ba", "_meshcop._udp", r.cb)
	runner.RunUntilIdle()
	assert.Equal(t, []error{nil, nil}, r.errs)
	assert.Equal(t, 0, p.ServiceCount())
}

func TestPublisher_PublishHost(t *testing.T) {
	p, nsd, runner, _ := newTestPublisher()

	var r results
	require.NoError(t, p.PublishHost("empty", nil, r.cb))
	assert.Equal(t, []error{nil}, r.errs)
	assert.Empty(t, nsd.requests)

	addrs := []netip.Addr{netip.MustParseAddr("fd00::1")}
	require.NoError(t, p.PublishHost("host", addrs, r.cb))
	require.Len(t, nsd.requests, 1)
	assert.Equal(t, int32(1), nsd.requests[0].listenerId)
	nsd.requests[0].receiver.OnSuccess()
	runner.RunUntilIdle()
	assert.Equal(t, []error{nil, nil}, r.errs)

	p.UnpublishHost("host", r.cb)
	runner.RunUntilIdle()
	assert.Len(t, r.errs, 3)
}

func TestPublisher_ResetOnNilNsd(t *testing.T) {
	p, nsd, _, _ := newTestPublisher()
	require.NoError(t, p.PublishService("", "ba", "_meshcop._udp", nil, 49191, nil, nil))
	require.NoError(t, p.PublishHost("host", []netip.Addr{netip.MustParseAddr("fd00::1")}, nil))

	p.SetNsdPublisher(nil)
	assert.False(t, p.IsStarted())
	assert.Equal(t, 1, nsd.resets)
	assert.Equal(t, 0, p.ServiceCount())
	assert.Equal(t, "unregister", nsd.requests[len(nsd.requests)-1].op)
}

func TestPublisher_ListenerIdWraps(t *testing.T) {
	p, _, _, _ := newTestPublisher()
	p.nextListenerId = 1<<31 - 1
	assert.Equal(t, int32(0), p.allocateListenerId())
	assert.Equal(t, int32(1), p.allocateListenerId())
}
