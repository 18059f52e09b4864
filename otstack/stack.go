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

// Package otstack defines the contract between the daemon and the OpenThread instance it drives, and
// provides SimStack, an in-process simulated instance.
package otstack

import (
	"time"

	"github.com/openthread/ot-daemon/dispatcher"
	"github.com/openthread/ot-daemon/types"
)

// TaskRunner is the task queue stack callbacks are delivered on. *dispatcher.Dispatcher implements it.
type TaskRunner interface {
	Post(task func())
	PostDelayed(delay time.Duration, task func()) dispatcher.AlarmId
	CancelDelayed(id dispatcher.AlarmId) bool
}

type MulticastListenerEvent int

const (
	MulticastListenerAdded   MulticastListenerEvent = 0
	MulticastListenerRemoved MulticastListenerEvent = 1
)

func (e MulticastListenerEvent) String() string {
	if e == MulticastListenerAdded {
		return "Added"
	}
	return "Removed"
}

// Callbacks are the notifications a Stack delivers. Each is invoked as a task on the TaskRunner of the stack,
// never from within a Stack method call. Nil callbacks are skipped.
type Callbacks struct {
	StateChanged        func(flags types.OtChangedFlags)
	MulticastListener   func(event MulticastListenerEvent, address string)
	EphemeralKeyChanged func()
}

// Stack is an OpenThread instance. All methods must be called from the TaskRunner goroutine of the stack.
// Errors are *types.Error values carrying the OpenThread error code.
type Stack interface {
	// SetCallbacks registers the notification callbacks. The closures carry the context of the receiver.
	SetCallbacks(cb Callbacks)

	GetDeviceRole() types.OtDeviceRole
	GetPartitionId() uint32
	IsIp6Enabled() bool
	SetIp6Enabled(enabled bool) error
	SetThreadEnabled(enabled bool) error

	// GetActiveDatasetTlvs returns OT_ERROR_NOT_FOUND if there is no active dataset.
	GetActiveDatasetTlvs() ([]byte, error)
	// GetPendingDatasetTlvs returns OT_ERROR_NOT_FOUND if there is no pending dataset.
	GetPendingDatasetTlvs() ([]byte, error)
	SetActiveDatasetTlvs(tlvs []byte) error
	// ErasePersistentInfo fails with OT_ERROR_INVALID_STATE unless Thread is disabled.
	ErasePersistentInfo() error

	// DetachGracefully starts a graceful detach and calls done once it has completed. Returns OT_ERROR_BUSY
	// if a graceful detach is already in progress; done is not called in that case.
	DetachGracefully(done func()) error
	// SendMgmtPendingSet sends MGMT_PENDING_SET.req to the leader. Returns OT_ERROR_BUSY if a previous request
	// has not completed; done is called exactly once if the request was sent.
	SendMgmtPendingSet(tlvs []byte, done func(err error)) error

	SetRegion(regionCode uint16) error
	GetRegion() (uint16, error)
	GetSupportedChannelMask() uint32
	GetPreferredChannelMask() uint32
	SetChannelMaxTransmitPower(channel int, maxPower int16) error

	SetLinkMode(mode types.LinkMode) error
	GetLinkMode() types.LinkMode
	SetRouterUpgradeThreshold(threshold uint8)
	SetLocalLeaderWeight(weight uint8)

	SetNat64Enabled(enabled bool)
	SetDnsUpstreamQueryEnabled(enabled bool)
	SetSrpServerAutoEnableMode(enabled bool)
	SetSrpServerEnabled(enabled bool)
	InitBorderRouting(infraIfName string) error
	SetBorderRoutingEnabled(enabled bool) error
	SetBackboneRouterEnabled(enabled bool)
	IsBackboneRouterPrimary() bool
	GetMulticastListeners() []string
	SetTrelEnabled(enabled bool, infraIfName string) error
	SetInfraNat64Prefix(prefix string)
	SetUpstreamDnsServers(servers []string)

	SetBorderAgentEnabled(enabled bool)
	SetBorderAgentMeshcopService(instanceName string, vendorTxt []byte)
	SetEphemeralKey(passcode string, lifetime time.Duration) error
	ClearEphemeralKey()
	IsEphemeralKeyActive() bool
	IsEphemeralKeyInUse() bool

	GetUnicastAddresses() []types.Ipv6AddressInfo
	GetMulticastAddresses() []types.Ipv6AddressInfo

	GetTelemetry() (*TelemetryData, error)
	// CliInputLine feeds one line to the stack CLI. Output chunks are passed to output as they are produced,
	// followed by the "> " prompt.
	CliInputLine(line string, output func(chunk string))
	GetVersion() string

	Close() error
}
