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

// OpenThread-specific types and definitions.

package types

import "strings"

type OtDeviceRole int

const (
	OtDeviceRoleDisabled OtDeviceRole = 0 ///< The Thread stack is disabled.
	OtDeviceRoleDetached OtDeviceRole = 1 ///< Not currently participating in a Thread network/partition.
	OtDeviceRoleChild    OtDeviceRole = 2 ///< The Thread Child role.
	OtDeviceRoleRouter   OtDeviceRole = 3 ///< The Thread Router role.
	OtDeviceRoleLeader   OtDeviceRole = 4 ///< The Thread Leader role.
)

func (r OtDeviceRole) String() string {
	switch r {
	case OtDeviceRoleDisabled:
		return "disabled"
	case OtDeviceRoleDetached:
		return "detached"
	case OtDeviceRoleChild:
		return "child"
	case OtDeviceRoleRouter:
		return "router"
	case OtDeviceRoleLeader:
		return "leader"
	default:
		return "INVALID"
	}
}

// IsAttached returns true for the roles in which the device participates in a Thread partition.
func (r OtDeviceRole) IsAttached() bool {
	return r == OtDeviceRoleChild || r == OtDeviceRoleRouter || r == OtDeviceRoleLeader
}

// ParseOtDeviceRole parses the role string as printed by the ot-cli 'state' command.
func ParseOtDeviceRole(s string) (OtDeviceRole, bool) {
	switch strings.TrimSpace(s) {
	case "disabled":
		return OtDeviceRoleDisabled, true
	case "detached":
		return OtDeviceRoleDetached, true
	case "child":
		return OtDeviceRoleChild, true
	case "router":
		return OtDeviceRoleRouter, true
	case "leader":
		return OtDeviceRoleLeader, true
	default:
		return OtDeviceRoleDisabled, false
	}
}

// OtChangedFlags is the bitmask of OT_CHANGED_* flags passed to state-changed callbacks.
type OtChangedFlags uint32

const (
	OT_CHANGED_IP6_ADDRESS_ADDED            OtChangedFlags = 1 << 0
	OT_CHANGED_IP6_ADDRESS_REMOVED          OtChangedFlags = 1 << 1
	OT_CHANGED_THREAD_ROLE                  OtChangedFlags = 1 << 2
	OT_CHANGED_THREAD_LL_ADDR               OtChangedFlags = 1 << 3
	OT_CHANGED_THREAD_ML_ADDR               OtChangedFlags = 1 << 4
	OT_CHANGED_THREAD_RLOC_ADDED            OtChangedFlags = 1 << 5
	OT_CHANGED_THREAD_RLOC_REMOVED          OtChangedFlags = 1 << 6
	OT_CHANGED_THREAD_PARTITION_ID          OtChangedFlags = 1 << 7
	OT_CHANGED_THREAD_KEY_SEQUENCE_COUNTER  OtChangedFlags = 1 << 8
	OT_CHANGED_THREAD_NETDATA               OtChangedFlags = 1 << 9
	OT_CHANGED_THREAD_CHILD_ADDED           OtChangedFlags = 1 << 10
	OT_CHANGED_THREAD_CHILD_REMOVED         OtChangedFlags = 1 << 11
	OT_CHANGED_IP6_MULTICAST_SUBSCRIBED     OtChangedFlags = 1 << 12
	OT_CHANGED_IP6_MULTICAST_UNSUBSCRIBED   OtChangedFlags = 1 << 13
	OT_CHANGED_THREAD_CHANNEL               OtChangedFlags = 1 << 14
	OT_CHANGED_THREAD_PANID                 OtChangedFlags = 1 << 15
	OT_CHANGED_THREAD_NETWORK_NAME          OtChangedFlags = 1 << 16
	OT_CHANGED_THREAD_EXT_PANID             OtChangedFlags = 1 << 17
	OT_CHANGED_NETWORK_KEY                  OtChangedFlags = 1 << 18
	OT_CHANGED_PSKC                         OtChangedFlags = 1 << 19
	OT_CHANGED_SECURITY_POLICY              OtChangedFlags = 1 << 20
	OT_CHANGED_CHANNEL_MANAGER_NEW_CHANNEL  OtChangedFlags = 1 << 21
	OT_CHANGED_SUPPORTED_CHANNEL_MASK       OtChangedFlags = 1 << 22
	OT_CHANGED_COMMISSIONER_STATE           OtChangedFlags = 1 << 23
	OT_CHANGED_THREAD_NETIF_STATE           OtChangedFlags = 1 << 24
	OT_CHANGED_THREAD_BACKBONE_ROUTER_STATE OtChangedFlags = 1 << 25
	OT_CHANGED_THREAD_BACKBONE_ROUTER_LOCAL OtChangedFlags = 1 << 26
	OT_CHANGED_JOINER_STATE                 OtChangedFlags = 1 << 27
	OT_CHANGED_ACTIVE_DATASET               OtChangedFlags = 1 << 28
	OT_CHANGED_PENDING_DATASET              OtChangedFlags = 1 << 29
	OT_CHANGED_NAT64_TRANSLATOR_STATE       OtChangedFlags = 1 << 30
	OT_CHANGED_PARENT_LINK_QUALITY          OtChangedFlags = 1 << 31

	OT_CHANGED_ALL OtChangedFlags = 0xffffffff
)

// Has returns true if any of the bits in f are set.
func (flags OtChangedFlags) Has(f OtChangedFlags) bool {
	return flags&f != 0
}

// LinkMode is the MLE link mode of a device.
type LinkMode struct {
	RxOnWhenIdle     bool `yaml:"rx_on_when_idle"`
	FullThreadDevice bool `yaml:"full_thread_device"`
	FullNetworkData  bool `yaml:"full_network_data"`
}

// RouterLinkMode returns the link mode used by a border router.
func RouterLinkMode() LinkMode {
	return LinkMode{
		RxOnWhenIdle:     true,
		FullThreadDevice: true,
		FullNetworkData:  true,
	}
}

// ParseLinkMode parses the "rdn" notation of the ot-cli 'mode' command.
func ParseLinkMode(s string) (mode LinkMode) {
	for _, c := range s {
		switch c {
		case 'r':
			mode.RxOnWhenIdle = true
		case 'd':
			mode.FullThreadDevice = true
		case 'n':
			mode.FullNetworkData = true
		}
	}
	return
}

func (m LinkMode) String() string {
	s := ""
	if m.RxOnWhenIdle {
		s += "r"
	}
	if m.FullThreadDevice {
		s += "d"
	}
	if m.FullNetworkData {
		s += "n"
	}
	if s == "" {
		s = "-"
	}
	return s
}

// IEEE 802.15.4 2.4 GHz O-QPSK channel page 0 parameters.
const (
	MinChannel ChannelId = 11
	MaxChannel ChannelId = 26

	// DefaultSupportedChannelMask covers channels 11 to 26.
	DefaultSupportedChannelMask uint32 = 0x07FFF800
)

type ChannelId = int

const (
	InvalidRloc16   uint16 = 0xfffe
	BroadcastRloc16 uint16 = 0xffff
)
