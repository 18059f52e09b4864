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
	"net"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pkg/errors"

	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/types"
)

const (
	zeroconfDomain = "local."

	zeroconfErrRegister    = 1
	zeroconfErrUnknownHost = 2
)

// ZeroconfPublisher is an NsdPublisher that answers mDNS queries itself on the given interfaces.
// Hosts are only recorded; their addresses are published with the services that name them.
type ZeroconfPublisher struct {
	log    *logger.TaggedLogger
	ifaces []net.Interface

	lock     sync.Mutex
	servers  map[int32]*zeroconf.Server
	hosts    map[string][]string
	hostByID map[int32]string
}

// NewZeroconfPublisher creates a publisher on the named interfaces, or on all multicast interfaces when no
// name is given.
func NewZeroconfPublisher(ifaceNames []string) (*ZeroconfPublisher, error) {
	var ifaces []net.Interface
	for _, name := range ifaceNames {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, errors.Wrapf(err, "mDNS interface %s", name)
		}
		ifaces = append(ifaces, *iface)
	}
	return &ZeroconfPublisher{
		log:      logger.Tagged("Zeroconf"),
		ifaces:   ifaces,
		servers:  map[int32]*zeroconf.Server{},
		hosts:    map[string][]string{},
		hostByID: map[int32]string{},
	}, nil
}

func (z *ZeroconfPublisher) RegisterService(hostName, name, serviceType string, subTypes []string, port uint16,
	txt []types.DnsTxtAttribute, receiver NsdStatusReceiver, listenerId int32) {
	service := strings.Join(append([]string{serviceType}, subTypes...), ",")
	text := make([]string, 0, len(txt))
	for _, e := range txt {
		if e.Value == nil {
			text = append(text, e.Name)
		} else {
			text = append(text, e.Name+"="+string(e.Value))
		}
	}

	z.lock.Lock()
	defer z.lock.Unlock()

	var server *zeroconf.Server
	var err error
	if hostName == "" {
		server, err = zeroconf.Register(name, service, zeroconfDomain, int(port), text, z.ifaces)
	} else {
		addrs, ok := z.hosts[hostName]
		if !ok {
			z.log.Warnf("service %s.%s refers to unknown host %s", name, serviceType, hostName)
			receiver.OnError(zeroconfErrUnknownHost)
			return
		}
		server, err = zeroconf.RegisterProxy(name, service, zeroconfDomain, int(port), hostName, addrs, text, z.ifaces)
	}
	if err != nil {
		z.log.Warnf("register %s.%s failed: %v", name, serviceType, err)
		receiver.OnError(zeroconfErrRegister)
		return
	}
	z.servers[listenerId] = server
	receiver.OnSuccess()
}

func (z *ZeroconfPublisher) RegisterHost(name string, addresses []string, receiver NsdStatusReceiver, listenerId int32) {
	z.lock.Lock()
	defer z.lock.Unlock()
	z.hosts[name] = append([]string(nil), addresses...)
	z.hostByID[listenerId] = name
	receiver.OnSuccess()
}

func (z *ZeroconfPublisher) Unregister(receiver NsdStatusReceiver, listenerId int32) {
	z.lock.Lock()
	defer z.lock.Unlock()
	if server, ok := z.servers[listenerId]; ok {
		server.Shutdown()
		delete(z.servers, listenerId)
	}
	if host, ok := z.hostByID[listenerId]; ok {
		delete(z.hosts, host)
		delete(z.hostByID, listenerId)
	}
	receiver.OnSuccess()
}

func (z *ZeroconfPublisher) Reset() {
	z.lock.Lock()
	defer z.lock.Unlock()
	for id, server := range z.servers {
		server.Shutdown()
		delete(z.servers, id)
	}
	clear(z.hosts)
	clear(z.hostByID)
}
