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
	"github.com/openthread/ot-daemon/dataset"
	"github.com/openthread/ot-daemon/otstack"
	"github.com/openthread/ot-daemon/telemetry"
	"github.com/openthread/ot-daemon/types"
)

const addressChangedFlags = types.OT_CHANGED_IP6_ADDRESS_ADDED | types.OT_CHANGED_IP6_ADDRESS_REMOVED |
	types.OT_CHANGED_IP6_MULTICAST_SUBSCRIBED | types.OT_CHANGED_IP6_MULTICAST_UNSUBSCRIBED

const borderAgentFlags = types.OT_CHANGED_THREAD_ROLE | types.OT_CHANGED_ACTIVE_DATASET |
	types.OT_CHANGED_THREAD_NETWORK_NAME | types.OT_CHANGED_THREAD_EXT_PANID |
	types.OT_CHANGED_THREAD_BACKBONE_ROUTER_STATE

// RegisterStateCallback replaces the client callback. The new callback is immediately sent the full state.
func (s *Server) RegisterStateCallback(callback Callback, listenerId int64) {
	s.runner.Post(func() { s.registerStateCallbackInternal(callback, listenerId) })
}

func (s *Server) registerStateCallbackInternal(callback Callback, listenerId int64) {
	if !s.isInitialized() {
		s.log.Warnf("OT is not initialized")
		return
	}

	s.callback = callback
	if s.callback == nil {
		return
	}

	// Refresh everything so that a new listener never sees stale state.
	s.refreshState(types.OT_CHANGED_ALL)
	s.notifyStateChanged(listenerId)
	s.callback.OnThreadEnabledChanged(s.threadEnabled)
	s.callback.OnBackboneRouterStateChanged(s.getBackboneRouterState())
}

// refreshState updates the state snapshot for the changed flags and reports whether it changed.
func (s *Server) refreshState(flags types.OtChangedFlags) bool {
	haveUpdates := false

	if flags.Has(types.OT_CHANGED_THREAD_NETIF_STATE) {
		haveUpdates = true
		s.state.IsInterfaceUp = s.stack.IsIp6Enabled()
	}
	if flags.Has(types.OT_CHANGED_THREAD_ROLE) {
		haveUpdates = true
		s.state.DeviceRole = s.stack.GetDeviceRole()
		telemetry.SetDeviceRole(s.state.DeviceRole)
	}
	if flags.Has(types.OT_CHANGED_THREAD_PARTITION_ID) {
		haveUpdates = true
		s.state.PartitionId = s.stack.GetPartitionId()
	}
	if flags.Has(types.OT_CHANGED_ACTIVE_DATASET) {
		haveUpdates = true
		tlvs, err := s.stack.GetActiveDatasetTlvs()
		if err != nil {
			tlvs = nil
		}
		s.state.ActiveDatasetTlvs = tlvs
	}
	if flags.Has(types.OT_CHANGED_PENDING_DATASET) {
		haveUpdates = true
		tlvs, err := s.stack.GetPendingDatasetTlvs()
		if err != nil {
			tlvs = nil
		}
		s.state.PendingDatasetTlvs = tlvs
	}
	if flags.Has(types.OT_CHANGED_THREAD_BACKBONE_ROUTER_STATE) {
		haveUpdates = true
		s.state.MulticastForwardingEnabled = s.stack.IsBackboneRouterPrimary()
	}

	if s.isAttached() && !dataset.IsEmpty(s.state.ActiveDatasetTlvs) && s.joinReceiver.pending() {
		s.log.Infof("Join succeeded")
		s.joinReceiver.take().OnSuccess()
	}
	return haveUpdates
}

// snapshot returns a copy of the state with the remaining ephemeral key lifetime filled in.
func (s *Server) snapshot() types.OtDaemonState {
	st := s.state.Clone()
	st.EphemeralKeyLifetimeMillis = 0
	if st.EphemeralKeyState != types.EphemeralKeyDisabled {
		if remaining := s.ephemeralKeyExpiry.Sub(s.cfg.Now()).Milliseconds(); remaining > 0 {
			st.EphemeralKeyLifetimeMillis = remaining
		}
	}
	return st
}

func (s *Server) notifyStateChanged(listenerId int64) {
	if s.callback == nil {
		s.log.Warnf("Ignoring OT state changes: callback is not set")
		return
	}
	telemetry.RecordStateNotification()
	s.callback.OnStateChanged(s.snapshot(), listenerId)
}

func (s *Server) handleStateChanged(flags types.OtChangedFlags) {
	if s.refreshState(flags) {
		s.notifyStateChanged(-1)
	}

	if flags.Has(types.OT_CHANGED_THREAD_BACKBONE_ROUTER_STATE) {
		s.notifyBackboneRouterState()
	}
	if flags.Has(addressChangedFlags) {
		s.notifyAddressChanged()
	}
	if flags.Has(borderAgentFlags) {
		s.agent.Update()
	}
}

func (s *Server) getBackboneRouterState() types.BackboneRouterState {
	return types.BackboneRouterState{
		MulticastForwardingEnabled: s.stack.IsBackboneRouterPrimary(),
		ListeningAddresses:         s.stack.GetMulticastListeners(),
	}
}

func (s *Server) notifyBackboneRouterState() {
	if s.callback == nil {
		s.log.Warnf("OT daemon callback is not set")
		return
	}
	s.callback.OnBackboneRouterStateChanged(s.getBackboneRouterState())
}

func (s *Server) handleMulticastListenerEvent(event otstack.MulticastListenerEvent, address string) {
	s.log.Debugf("Multicast forwarding address changed, %s is %s", address, event)
	s.notifyBackboneRouterState()
}

func (s *Server) addresses() []types.Ipv6AddressInfo {
	addrs := s.stack.GetUnicastAddresses()
	return append(addrs, s.stack.GetMulticastAddresses()...)
}

func (s *Server) notifyAddressChanged() {
	if s.callback == nil {
		s.log.Warnf("OT daemon callback is not set")
		return
	}
	s.callback.OnAddressChanged(s.addresses())
}
