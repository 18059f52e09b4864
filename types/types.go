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

package types

import (
	"bytes"
	"fmt"
)

// ThreadEnabledState is the Thread enablement state owned by the daemon.
type ThreadEnabledState int

const (
	ThreadStateDisabled  ThreadEnabledState = 0
	ThreadStateEnabled   ThreadEnabledState = 1
	ThreadStateDisabling ThreadEnabledState = 2
)

func (s ThreadEnabledState) String() string {
	switch s {
	case ThreadStateDisabled:
		return "disabled"
	case ThreadStateEnabled:
		return "enabled"
	case ThreadStateDisabling:
		return "disabling"
	default:
		return fmt.Sprintf("ThreadEnabledState(%d)", int(s))
	}
}

// EphemeralKeyState is the state of the border agent ephemeral key.
type EphemeralKeyState int

const (
	EphemeralKeyDisabled EphemeralKeyState = 0
	EphemeralKeyEnabled  EphemeralKeyState = 1
	EphemeralKeyInUse    EphemeralKeyState = 2
)

func (s EphemeralKeyState) String() string {
	switch s {
	case EphemeralKeyDisabled:
		return "disabled"
	case EphemeralKeyEnabled:
		return "enabled"
	case EphemeralKeyInUse:
		return "in-use"
	default:
		return fmt.Sprintf("EphemeralKeyState(%d)", int(s))
	}
}

// OtDaemonState is the snapshot of the Thread stack state pushed to the registered client.
type OtDaemonState struct {
	IsInterfaceUp              bool              `yaml:"interface_up"`
	DeviceRole                 OtDeviceRole      `yaml:"-"`
	PartitionId                uint32            `yaml:"partition_id"`
	ActiveDatasetTlvs          []byte            `yaml:"-"`
	PendingDatasetTlvs         []byte            `yaml:"-"`
	MulticastForwardingEnabled bool              `yaml:"multicast_forwarding"`
	EphemeralKeyState          EphemeralKeyState `yaml:"-"`
	EphemeralKeyPasscode       string            `yaml:"ephemeral_key_passcode,omitempty"`
	EphemeralKeyLifetimeMillis int64             `yaml:"ephemeral_key_lifetime_ms"`
}

// Clone returns a deep copy of the state.
func (s *OtDaemonState) Clone() OtDaemonState {
	c := *s
	c.ActiveDatasetTlvs = bytes.Clone(s.ActiveDatasetTlvs)
	c.PendingDatasetTlvs = bytes.Clone(s.PendingDatasetTlvs)
	return c
}

// BackboneRouterState is the multicast forwarding state of the Backbone Router.
type BackboneRouterState struct {
	MulticastForwardingEnabled bool     `yaml:"multicast_forwarding"`
	ListeningAddresses         []string `yaml:"listening_addresses,flow"`
}

// Ipv6AddressInfo describes one address assigned to the Thread network interface.
type Ipv6AddressInfo struct {
	Address      string `yaml:"address"`
	PrefixLength uint8  `yaml:"prefix_length"`
	IsPreferred  bool   `yaml:"preferred"`
	IsMeshLocal  bool   `yaml:"mesh_local"`
	IsActiveOmr  bool   `yaml:"active_omr"`
	IsMulticast  bool   `yaml:"multicast"`
}

// ChannelMaxPower is the maximum transmit power of one channel, in 0.01 dBm.
type ChannelMaxPower struct {
	Channel  int `yaml:"channel"`
	MaxPower int `yaml:"max_power"`
}

// OtDaemonConfiguration is the platform-supplied feature configuration.
type OtDaemonConfiguration struct {
	BorderRouterEnabled                  bool `yaml:"border_router_enabled"`
	Nat64Enabled                         bool `yaml:"nat64_enabled"`
	Dhcpv6PdEnabled                      bool `yaml:"dhcpv6_pd_enabled"`
	SrpServerWaitForBorderRoutingEnabled bool `yaml:"srp_server_wait_for_border_routing_enabled"`
	BorderRouterAutoJoinEnabled          bool `yaml:"border_router_auto_join_enabled"`
}

// InfraLinkState is the state of the infrastructure link the border router is attached to.
type InfraLinkState struct {
	InterfaceName string   `yaml:"interface_name"`
	Nat64Prefix   string   `yaml:"nat64_prefix"`
	DnsServers    []string `yaml:"dns_servers,flow"`
}

// DnsTxtAttribute is one key/value entry of a DNS-SD TXT record.
type DnsTxtAttribute struct {
	Name  string `yaml:"name"`
	Value []byte `yaml:"value"`
}

// MeshcopTxtAttributes are the vendor-specific values of the _meshcop._udp service published by the
// border agent.
type MeshcopTxtAttributes struct {
	VendorName            string            `yaml:"vendor_name"`
	ModelName             string            `yaml:"model_name"`
	VendorOui             []byte            `yaml:"vendor_oui"`
	NonStandardTxtEntries []DnsTxtAttribute `yaml:"non_standard_txt_entries"`
}

// ChannelMasks are the supported and preferred channel masks of the radio.
type ChannelMasks struct {
	Supported uint32 `yaml:"supported"`
	Preferred uint32 `yaml:"preferred"`
}

// IsValidCountryCode reports whether code is two ASCII letters.
func IsValidCountryCode(code string) bool {
	return len(code) == 2 && isAsciiLetter(code[0]) && isAsciiLetter(code[1])
}

func isAsciiLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
