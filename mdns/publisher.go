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

// Package mdns publishes DNS-SD services and hosts on the infrastructure link through a platform mDNS
// implementation (NsdPublisher).
package mdns

import (
	"math"
	"net/netip"
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/types"
)

type State int

const (
	StateIdle  State = 0
	StateReady State = 1
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "idle"
}

var (
	ErrMdns         = errors.New("mDNS failure")
	ErrNotStarted   = errors.Wrap(ErrMdns, "no platform mDNS implementation registered")
	ErrInvalidState = errors.New("invalid state")
)

// NsdStatusReceiver receives the result of one platform mDNS request. An error code of 0 is success.
type NsdStatusReceiver interface {
	OnSuccess()
	OnError(errorCode int)
}

// NsdPublisher is the platform mDNS implementation. Requests complete asynchronously through the
// receiver; the listener id identifies the registration in Unregister.
type NsdPublisher interface {
	RegisterService(hostName, name, serviceType string, subTypes []string, port uint16,
		txt []types.DnsTxtAttribute, receiver NsdStatusReceiver, listenerId int32)
	RegisterHost(name string, addresses []string, receiver NsdStatusReceiver, listenerId int32)
	Unregister(receiver NsdStatusReceiver, listenerId int32)
	Reset()
}

// Poster runs tasks on the goroutine that owns the Publisher.
type Poster interface {
	Post(task func())
}

// ResultCallback is called once with the result of a publish or unpublish request.
type ResultCallback func(err error)

// statusReceiver adapts a ResultCallback to an NsdStatusReceiver. It fires at most once and always on the
// owner goroutine.
type statusReceiver struct {
	once   sync.Once
	poster Poster
	cb     ResultCallback
}

func newStatusReceiver(poster Poster, cb ResultCallback) *statusReceiver {
	return &statusReceiver{poster: poster, cb: cb}
}

func (r *statusReceiver) OnSuccess() {
	r.OnError(0)
}

func (r *statusReceiver) OnError(errorCode int) {
	r.once.Do(func() {
		if r.cb == nil {
			return
		}
		err := dnsError(errorCode)
		r.poster.Post(func() { r.cb(err) })
	})
}

func dnsError(errorCode int) error {
	if errorCode == 0 {
		return nil
	}
	return errors.Wrapf(ErrMdns, "platform error %d", errorCode)
}

type serviceKey struct {
	name        string
	serviceType string
}

type registration struct {
	listenerId int32
	completed  bool
	result     error
	callbacks  []ResultCallback
}

func (r *registration) complete(err error) {
	r.completed = true
	r.result = err
	callbacks := r.callbacks
	r.callbacks = nil
	for _, cb := range callbacks {
		if cb != nil {
			cb(err)
		}
	}
}

// wait resolves cb with the registration result, immediately if it is already known.
func (r *registration) wait(cb ResultCallback) {
	if !r.completed {
		r.callbacks = append(r.callbacks, cb)
		return
	}
	if cb != nil {
		cb(r.result)
	}
}

type serviceRegistration struct {
	registration
	hostName string
	subTypes []string
	port     uint16
	txtData  []byte
}

func (r *serviceRegistration) sameAs(hostName string, subTypes []string, port uint16, txtData []byte) bool {
	return r.hostName == hostName && slices.Equal(r.subTypes, subTypes) && r.port == port &&
		slices.Equal(r.txtData, txtData)
}

type hostRegistration struct {
	registration
	addresses []netip.Addr
}

// Publisher keeps the service and host registrations of the daemon and forwards them to the platform
// NsdPublisher. It is not safe for concurrent use; all methods must be called on the goroutine behind
// the Poster.
type Publisher struct {
	log            *logger.TaggedLogger
	poster         Poster
	stateCallback  func(State)
	nsd            NsdPublisher
	nextListenerId int32
	services       map[serviceKey]*serviceRegistration
	hosts          map[string]*hostRegistration
}

func NewPublisher(poster Poster, stateCallback func(State)) *Publisher {
	if stateCallback == nil {
		stateCallback = func(State) {}
	}
	return &Publisher{
		log:           logger.Tagged("MDNS"),
		poster:        poster,
		stateCallback: stateCallback,
		services:      map[serviceKey]*serviceRegistration{},
		hosts:         map[string]*hostRegistration{},
	}
}

// SetNsdPublisher installs the platform implementation. Setting nil withdraws all registrations and resets
// the previous implementation.
func (p *Publisher) SetNsdPublisher(nsd NsdPublisher) {
	p.log.Infof("Set NsdPublisher %v", nsd != nil)
	if nsd != nil {
		p.nsd = nsd
		p.stateCallback(StateReady)
		return
	}
	p.Stop()
	p.nsd = nil
}

func (p *Publisher) IsStarted() bool {
	return p.nsd != nil
}

// Stop withdraws all registrations and resets the platform implementation.
func (p *Publisher) Stop() {
	for key, reg := range p.services {
		p.unregister(key.name+"."+key.serviceType, &reg.registration, nil)
	}
	for name, reg := range p.hosts {
		p.unregister(name, &reg.registration, nil)
	}
	clear(p.services)
	clear(p.hosts)
	if p.nsd != nil {
		p.nsd.Reset()
	}
}

func (p *Publisher) allocateListenerId() int32 {
	if p.nextListenerId == math.MaxInt32 {
		p.nextListenerId = 0
	}
	id := p.nextListenerId
	p.nextListenerId++
	return id
}

func (p *Publisher) unregister(what string, reg *registration, cb ResultCallback) {
	if p.nsd == nil {
		return
	}
	p.log.Infof("Unpublishing %s listener ID = %d", what, reg.listenerId)
	p.nsd.Unregister(newStatusReceiver(p.poster, cb), reg.listenerId)
}

// PublishService registers a service instance. cb is called once the platform has answered. A registration
// identical to an existing one resolves with the result of the existing one; a differing registration of the
// same instance replaces it.
func (p *Publisher) PublishService(hostName, name, serviceType string, subTypes []string, port uint16,
	txtData []byte, cb ResultCallback) error {
	listenerId := p.allocateListenerId()

	if !p.IsStarted() {
		p.log.Warnf("No platform mDNS implementation registered!")
		return ErrNotStarted
	}

	key := serviceKey{name: name, serviceType: serviceType}
	if existing, ok := p.services[key]; ok {
		if existing.sameAs(hostName, subTypes, port, txtData) {
			existing.wait(cb)
			return nil
		}
		delete(p.services, key)
		p.unregister(name+"."+serviceType, &existing.registration, nil)
	}

	txt, err := DecodeTxtData(txtData)
	if err != nil {
		return err
	}

	reg := &serviceRegistration{
		registration: registration{listenerId: listenerId, callbacks: []ResultCallback{cb}},
		hostName:     hostName,
		subTypes:     slices.Clone(subTypes),
		port:         port,
		txtData:      slices.Clone(txtData),
	}
	p.services[key] = reg

	p.log.Infof("Publishing service %s.%s listener ID = %d", name, serviceType, listenerId)
	p.nsd.RegisterService(hostName, name, serviceType, subTypes, port, txt,
		newStatusReceiver(p.poster, reg.complete), listenerId)
	return nil
}

// UnpublishService withdraws a service instance. Unknown instances succeed immediately.
func (p *Publisher) UnpublishService(name, serviceType string, cb ResultCallback) {
	if !p.IsStarted() {
		p.log.Warnf("No platform mDNS implementation registered!")
		cb(ErrNotStarted)
		return
	}
	key := serviceKey{name: name, serviceType: serviceType}
	reg, ok := p.services[key]
	if !ok {
		cb(nil)
		return
	}
	delete(p.services, key)
	p.unregister(name+"."+serviceType, &reg.registration, cb)
}

// PublishHost registers the addresses of a host. A host without addresses succeeds without a platform
// request.
func (p *Publisher) PublishHost(name string, addresses []netip.Addr, cb ResultCallback) error {
	listenerId := p.allocateListenerId()

	if !p.IsStarted() {
		p.log.Warnf("No platform mDNS implementation registered!")
		return ErrNotStarted
	}

	if existing, ok := p.hosts[name]; ok {
		if slices.Equal(existing.addresses, addresses) {
			existing.wait(cb)
			return nil
		}
		delete(p.hosts, name)
		p.unregister(name, &existing.registration, nil)
	}

	reg := &hostRegistration{
		registration: registration{listenerId: listenerId, callbacks: []ResultCallback{cb}},
		addresses:    slices.Clone(addresses),
	}
	p.hosts[name] = reg

	if len(addresses) == 0 {
		reg.complete(nil)
		return nil
	}

	p.log.Infof("Publishing host %s listener ID = %d", name, listenerId)
	addressStrings := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		addressStrings = append(addressStrings, addr.String())
	}
	p.nsd.RegisterHost(name, addressStrings, newStatusReceiver(p.poster, reg.complete), listenerId)
	return nil
}

// UnpublishHost withdraws a host. Unknown hosts succeed immediately.
func (p *Publisher) UnpublishHost(name string, cb ResultCallback) {
	if !p.IsStarted() {
		p.log.Warnf("No platform mDNS implementation registered!")
		cb(ErrNotStarted)
		return
	}
	reg, ok := p.hosts[name]
	if !ok {
		cb(nil)
		return
	}
	delete(p.hosts, name)
	p.unregister(name, &reg.registration, cb)
}

// ServiceCount returns the number of registered service instances.
func (p *Publisher) ServiceCount() int {
	return len(p.services)
}
