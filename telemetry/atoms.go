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

// Package telemetry turns stack counters into telemetry atoms, uploads them periodically and exports the
// daemon metrics.
package telemetry

import (
	"sort"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openthread/ot-daemon/otstack"
	"github.com/openthread/ot-daemon/types"
)

type NodeType int

const (
	NodeTypeUnspecified NodeType = 0
	NodeTypeRouter      NodeType = 1
	NodeTypeEnd         NodeType = 2
	NodeTypeSleepyEnd   NodeType = 3
	NodeTypeMinimalEnd  NodeType = 4
	NodeTypeLeader      NodeType = 5
	NodeTypeDetached    NodeType = 6
	NodeTypeDisabled    NodeType = 7
)

// NodeTypeFromRoleAndLinkMode classifies the device. Children are told apart by their link mode.
func NodeTypeFromRoleAndLinkMode(role types.OtDeviceRole, mode types.LinkMode) NodeType {
	switch role {
	case types.OtDeviceRoleDisabled:
		return NodeTypeDisabled
	case types.OtDeviceRoleDetached:
		return NodeTypeDetached
	case types.OtDeviceRoleRouter:
		return NodeTypeRouter
	case types.OtDeviceRoleLeader:
		return NodeTypeLeader
	case types.OtDeviceRoleChild:
		if !mode.RxOnWhenIdle {
			return NodeTypeSleepyEnd
		}
		if !mode.FullThreadDevice {
			return NodeTypeMinimalEnd
		}
		return NodeTypeEnd
	default:
		return NodeTypeUnspecified
	}
}

// Atoms are the three records reported per upload.
type Atoms struct {
	TelemetryData *structpb.Struct
	TopoEntries   *structpb.Struct
	DeviceInfo    *structpb.Struct
}

func wpanStats(td *otstack.TelemetryData) map[string]interface{} {
	mac := td.Mac
	return map[string]interface{}{
		"node_type":                    int(NodeTypeFromRoleAndLinkMode(td.Role, td.LinkMode)),
		"channel":                      td.Channel,
		"mac_cca_fail_rate":            float64(td.CcaFailureRate) / 0xffff,
		"radio_tx_power":               int(td.TxPower),
		"phy_rx":                       mac.RxTotal,
		"phy_tx":                       mac.TxTotal,
		"mac_unicast_rx":               mac.RxUnicast,
		"mac_unicast_tx":               mac.TxUnicast,
		"mac_broadcast_rx":             mac.RxBroadcast,
		"mac_broadcast_tx":             mac.TxBroadcast,
		"mac_tx_ack_req":               mac.TxAckRequested,
		"mac_tx_no_ack_req":            mac.TxNoAckRequested,
		"mac_tx_acked":                 mac.TxAcked,
		"mac_tx_data":                  mac.TxData,
		"mac_tx_data_poll":             mac.TxDataPoll,
		"mac_tx_beacon":                mac.TxBeacon,
		"mac_tx_beacon_req":            mac.TxBeaconRequest,
		"mac_tx_other_pkt":             mac.TxOther,
		"mac_tx_retry":                 mac.TxRetry,
		"mac_rx_data":                  mac.RxData,
		"mac_rx_data_poll":             mac.RxDataPoll,
		"mac_rx_beacon":                mac.RxBeacon,
		"mac_rx_beacon_req":            mac.RxBeaconRequest,
		"mac_rx_other_pkt":             mac.RxOther,
		"mac_rx_filter_whitelist":      mac.RxAddressFiltered,
		"mac_rx_filter_dest_addr":      mac.RxDestAddrFiltered,
		"mac_tx_fail_cca":              mac.TxErrCca,
		"mac_rx_fail_decrypt":          mac.RxErrSec,
		"mac_rx_fail_no_frame":         mac.RxErrNoFrame,
		"mac_rx_fail_unknown_neighbor": mac.RxErrUnknownNeighbor,
		"mac_rx_fail_invalid_src_addr": mac.RxErrInvalidSrcAddr,
		"mac_rx_fail_fcs":              mac.RxErrFcs,
		"mac_rx_fail_other":            mac.RxErrOther,
		"ip_tx_success":                td.Ip.TxSuccess,
		"ip_rx_success":                td.Ip.RxSuccess,
		"ip_tx_failure":                td.Ip.TxFailure,
		"ip_rx_failure":                td.Ip.RxFailure,
	}
}

func wpanTopoFull(td *otstack.TelemetryData) map[string]interface{} {
	children := 0
	for _, n := range td.Neighbors {
		if n.IsChild {
			children++
		}
	}
	return map[string]interface{}{
		"rloc16":              int(td.Rloc16),
		"router_id":           int(td.RouterId),
		"neighbor_table_size": len(td.Neighbors),
		"child_table_size":    children,
		"leader_router_id":    int(td.LeaderData.LeaderRouterId),
		"leader_weight":       int(td.LeaderData.Weighting),
		"network_data_len":    td.NetworkDataLen,
	}
}

// Packed neighbor fields, same bit layout as the Thread network atoms.
func topoEntry(n otstack.NeighborInfo) map[string]interface{} {
	combo1 := uint32(n.Rloc16) | uint32(n.Version)<<16
	combo2 := uint32(n.LinkQualityIn) | uint32(uint8(n.AverageRssi))<<8 | uint32(uint8(n.LastRssi))<<16
	combo3 := uint32(n.FrameErrorRate) | uint32(n.MessageErrorRate)<<16

	var flags uint32
	if n.Mode.RxOnWhenIdle {
		flags |= 1 << 0
	}
	if n.Mode.FullThreadDevice {
		flags |= 1 << 1
	}
	flags |= 1 << 2 // secure data requests
	if n.Mode.FullNetworkData {
		flags |= 1 << 3
	}
	if n.IsChild {
		flags |= 1 << 4
	}
	return map[string]interface{}{
		"combo_telemetry1": combo1,
		"combo_telemetry2": combo2,
		"combo_telemetry3": combo3,
		"age_sec":          n.Age,
		"topo_entry_flags": flags,
	}
}

func wpanBorderRouter(td *otstack.TelemetryData) map[string]interface{} {
	br := td.BorderRouting
	srp := td.Srp
	m := td.Mdns
	return map[string]interface{}{
		"border_routing_counters": map[string]interface{}{
			"inbound_unicast":    packetCount(br.InboundUnicastPackets, br.InboundUnicastBytes),
			"inbound_multicast":  packetCount(br.InboundMulticastPackets, br.InboundMulticastBytes),
			"outbound_unicast":   packetCount(br.OutboundUnicastPackets, br.OutboundUnicastBytes),
			"outbound_multicast": packetCount(br.OutboundMulticastPackets, br.OutboundMulticastBytes),
			"ra_rx":              br.RaRx,
			"ra_tx_success":      br.RaTxSuccess,
			"ra_tx_failure":      br.RaTxFailure,
			"rs_rx":              br.RsRx,
			"rs_tx_success":      br.RsTxSuccess,
			"rs_tx_failure":      br.RsTxFailure,
		},
		"srp_server": map[string]interface{}{
			"state":        srp.State,
			"address_mode": srp.AddressMode,
			"hosts": map[string]interface{}{
				"fresh_count":   srp.Hosts,
				"deleted_count": srp.DeletedHosts,
			},
			"services": map[string]interface{}{
				"fresh_count":   srp.Services,
				"deleted_count": srp.DeletedServices,
			},
			"response_counters": map[string]interface{}{
				"success_count":      srp.ResponseSuccess,
				"refused_count":      srp.ResponseRefused,
				"format_error_count": srp.ResponseFormat,
				"name_exists_count":  srp.ResponseNameExists,
			},
		},
		"mdns": map[string]interface{}{
			"success_count":         m.SuccessResponses,
			"not_found_count":       m.NotFoundResponses,
			"invalid_args_count":    m.InvalidArgsResponses,
			"duplicated_count":      m.DuplicatedResponses,
			"not_implemented_count": m.NotImplementedResponses,
			"unknown_error_count":   m.UnknownErrorResponses,
		},
		"nat64_enabled": td.Nat64Enabled,
	}
}

func packetCount(packets, bytes uint64) map[string]interface{} {
	return map[string]interface{}{"packet_count": packets, "byte_count": bytes}
}

// BuildAtoms converts a telemetry snapshot into atoms. Neighbors are reported in RLOC16 order.
func BuildAtoms(td *otstack.TelemetryData) (*Atoms, error) {
	if td == nil {
		return nil, errors.New("no telemetry data")
	}
	data, err := structpb.NewStruct(map[string]interface{}{
		"wpan_stats":         wpanStats(td),
		"wpan_topo_full":     wpanTopoFull(td),
		"wpan_border_router": wpanBorderRouter(td),
	})
	if err != nil {
		return nil, errors.Wrap(err, "telemetry data atom")
	}

	neighbors := append([]otstack.NeighborInfo(nil), td.Neighbors...)
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Rloc16 < neighbors[j].Rloc16 })
	entries := make([]interface{}, 0, len(neighbors))
	for _, n := range neighbors {
		entries = append(entries, topoEntry(n))
	}
	topo, err := structpb.NewStruct(map[string]interface{}{"topo_entries": entries})
	if err != nil {
		return nil, errors.Wrap(err, "topo entry atom")
	}

	info, err := structpb.NewStruct(map[string]interface{}{
		"thread_version":     td.Version,
		"ot_rcp_version":     td.Version,
		"thread_daemon_name": "ot-daemon",
	})
	if err != nil {
		return nil, errors.Wrap(err, "device info atom")
	}
	return &Atoms{TelemetryData: data, TopoEntries: topo, DeviceInfo: info}, nil
}
