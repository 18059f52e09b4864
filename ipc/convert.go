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

package ipc

import (
	"encoding/hex"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openthread/ot-daemon/types"
)

// Event types carried on a callback stream.
const (
	EventStateChanged               = "state_changed"
	EventThreadEnabledChanged       = "thread_enabled_changed"
	EventBackboneRouterStateChanged = "backbone_router_state_changed"
	EventAddressChanged             = "address_changed"
)

func getNumber(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func getString(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func getBool(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func getStruct(s *structpb.Struct, key string) *structpb.Struct {
	return s.GetFields()[key].GetStructValue()
}

func getList(s *structpb.Struct, key string) []*structpb.Value {
	return s.GetFields()[key].GetListValue().GetValues()
}

// getBytes decodes a hex string field. An empty field decodes to nil.
func getBytes(s *structpb.Struct, key string) ([]byte, error) {
	str := getString(s, key)
	if str == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(str)
	return b, errors.Wrapf(err, "field %s", key)
}

func stringList(values []string) []interface{} {
	list := make([]interface{}, len(values))
	for i, v := range values {
		list[i] = v
	}
	return list
}

func getStrings(s *structpb.Struct, key string) []string {
	var list []string
	for _, v := range getList(s, key) {
		list = append(list, v.GetStringValue())
	}
	return list
}

func stateMap(st types.OtDaemonState) map[string]interface{} {
	return map[string]interface{}{
		"interface_up":                  st.IsInterfaceUp,
		"device_role":                   int(st.DeviceRole),
		"partition_id":                  st.PartitionId,
		"active_dataset_tlvs":           hex.EncodeToString(st.ActiveDatasetTlvs),
		"pending_dataset_tlvs":          hex.EncodeToString(st.PendingDatasetTlvs),
		"multicast_forwarding_enabled":  st.MulticastForwardingEnabled,
		"ephemeral_key_state":           int(st.EphemeralKeyState),
		"ephemeral_key_passcode":        st.EphemeralKeyPasscode,
		"ephemeral_key_lifetime_millis": st.EphemeralKeyLifetimeMillis,
	}
}

func stateFromStruct(s *structpb.Struct) (types.OtDaemonState, error) {
	st := types.OtDaemonState{
		IsInterfaceUp:              getBool(s, "interface_up"),
		DeviceRole:                 types.OtDeviceRole(getNumber(s, "device_role")),
		PartitionId:                uint32(getNumber(s, "partition_id")),
		MulticastForwardingEnabled: getBool(s, "multicast_forwarding_enabled"),
		EphemeralKeyState:          types.EphemeralKeyState(getNumber(s, "ephemeral_key_state")),
		EphemeralKeyPasscode:       getString(s, "ephemeral_key_passcode"),
		EphemeralKeyLifetimeMillis: int64(getNumber(s, "ephemeral_key_lifetime_millis")),
	}
	var err error
	if st.ActiveDatasetTlvs, err = getBytes(s, "active_dataset_tlvs"); err != nil {
		return st, err
	}
	st.PendingDatasetTlvs, err = getBytes(s, "pending_dataset_tlvs")
	return st, err
}

func backboneRouterMap(st types.BackboneRouterState) map[string]interface{} {
	return map[string]interface{}{
		"multicast_forwarding_enabled": st.MulticastForwardingEnabled,
		"listening_addresses":          stringList(st.ListeningAddresses),
	}
}

func backboneRouterFromStruct(s *structpb.Struct) types.BackboneRouterState {
	return types.BackboneRouterState{
		MulticastForwardingEnabled: getBool(s, "multicast_forwarding_enabled"),
		ListeningAddresses:         getStrings(s, "listening_addresses"),
	}
}

func addressesList(addresses []types.Ipv6AddressInfo) []interface{} {
	list := make([]interface{}, len(addresses))
	for i, a := range addresses {
		list[i] = map[string]interface{}{
			"address":       a.Address,
			"prefix_length": int(a.PrefixLength),
			"preferred":     a.IsPreferred,
			"mesh_local":    a.IsMeshLocal,
			"active_omr":    a.IsActiveOmr,
			"multicast":     a.IsMulticast,
		}
	}
	return list
}

func addressesFromList(values []*structpb.Value) []types.Ipv6AddressInfo {
	addresses := make([]types.Ipv6AddressInfo, 0, len(values))
	for _, v := range values {
		s := v.GetStructValue()
		addresses = append(addresses, types.Ipv6AddressInfo{
			Address:      getString(s, "address"),
			PrefixLength: uint8(getNumber(s, "prefix_length")),
			IsPreferred:  getBool(s, "preferred"),
			IsMeshLocal:  getBool(s, "mesh_local"),
			IsActiveOmr:  getBool(s, "active_omr"),
			IsMulticast:  getBool(s, "multicast"),
		})
	}
	return addresses
}

func configurationMap(c types.OtDaemonConfiguration) map[string]interface{} {
	return map[string]interface{}{
		"border_router_enabled":                      c.BorderRouterEnabled,
		"nat64_enabled":                              c.Nat64Enabled,
		"dhcpv6_pd_enabled":                          c.Dhcpv6PdEnabled,
		"srp_server_wait_for_border_routing_enabled": c.SrpServerWaitForBorderRoutingEnabled,
		"border_router_auto_join_enabled":            c.BorderRouterAutoJoinEnabled,
	}
}

func configurationFromStruct(s *structpb.Struct) types.OtDaemonConfiguration {
	return types.OtDaemonConfiguration{
		BorderRouterEnabled:                  getBool(s, "border_router_enabled"),
		Nat64Enabled:                         getBool(s, "nat64_enabled"),
		Dhcpv6PdEnabled:                      getBool(s, "dhcpv6_pd_enabled"),
		SrpServerWaitForBorderRoutingEnabled: getBool(s, "srp_server_wait_for_border_routing_enabled"),
		BorderRouterAutoJoinEnabled:          getBool(s, "border_router_auto_join_enabled"),
	}
}

func meshcopMap(m types.MeshcopTxtAttributes) map[string]interface{} {
	entries := make([]interface{}, len(m.NonStandardTxtEntries))
	for i, e := range m.NonStandardTxtEntries {
		entries[i] = map[string]interface{}{"name": e.Name, "value": hex.EncodeToString(e.Value)}
	}
	return map[string]interface{}{
		"vendor_name":              m.VendorName,
		"model_name":               m.ModelName,
		"vendor_oui":               hex.EncodeToString(m.VendorOui),
		"non_standard_txt_entries": entries,
	}
}

func meshcopFromStruct(s *structpb.Struct) (types.MeshcopTxtAttributes, error) {
	m := types.MeshcopTxtAttributes{
		VendorName: getString(s, "vendor_name"),
		ModelName:  getString(s, "model_name"),
	}
	var err error
	if m.VendorOui, err = getBytes(s, "vendor_oui"); err != nil {
		return m, err
	}
	for _, v := range getList(s, "non_standard_txt_entries") {
		e := v.GetStructValue()
		value, err := getBytes(e, "value")
		if err != nil {
			return m, err
		}
		m.NonStandardTxtEntries = append(m.NonStandardTxtEntries, types.DnsTxtAttribute{
			Name:  getString(e, "name"),
			Value: value,
		})
	}
	return m, nil
}

func channelMaxPowersList(powers []types.ChannelMaxPower) []interface{} {
	list := make([]interface{}, len(powers))
	for i, p := range powers {
		list[i] = map[string]interface{}{"channel": p.Channel, "max_power": p.MaxPower}
	}
	return list
}

func channelMaxPowersFromList(values []*structpb.Value) []types.ChannelMaxPower {
	powers := make([]types.ChannelMaxPower, 0, len(values))
	for _, v := range values {
		s := v.GetStructValue()
		powers = append(powers, types.ChannelMaxPower{
			Channel:  int(getNumber(s, "channel")),
			MaxPower: int(getNumber(s, "max_power")),
		})
	}
	return powers
}

func newStruct(m map[string]interface{}) *structpb.Struct {
	s, err := structpb.NewStruct(m)
	if err != nil {
		// All maps built here hold JSON-compatible values only.
		panic(err)
	}
	return s
}
