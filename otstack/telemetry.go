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

package otstack

import (
	"github.com/openthread/ot-daemon/types"
)

// MacCounters mirror otMacCounters.
type MacCounters struct {
	TxTotal                  uint32
	TxUnicast                uint32
	TxBroadcast              uint32
	TxAckRequested           uint32
	TxAcked                  uint32
	TxNoAckRequested         uint32
	TxData                   uint32
	TxDataPoll               uint32
	TxBeacon                 uint32
	TxBeaconRequest          uint32
	TxOther                  uint32
	TxRetry                  uint32
	TxDirectMaxRetryExpiry   uint32
	TxIndirectMaxRetryExpiry uint32
	TxErrCca                 uint32
	TxErrAbort               uint32
	TxErrBusyChannel         uint32
	RxTotal                  uint32
	RxUnicast                uint32
	RxBroadcast              uint32
	RxData                   uint32
	RxDataPoll               uint32
	RxBeacon                 uint32
	RxBeaconRequest          uint32
	RxOther                  uint32
	RxAddressFiltered        uint32
	RxDestAddrFiltered       uint32
	RxDuplicated             uint32
	RxErrNoFrame             uint32
	RxErrUnknownNeighbor     uint32
	RxErrInvalidSrcAddr      uint32
	RxErrSec                 uint32
	RxErrFcs                 uint32
	RxErrOther               uint32
}

// IpCounters mirror otIpCounters.
type IpCounters struct {
	TxSuccess uint32
	RxSuccess uint32
	TxFailure uint32
	RxFailure uint32
}

type LeaderData struct {
	PartitionId       uint32
	Weighting         uint8
	DataVersion       uint8
	StableDataVersion uint8
	LeaderRouterId    uint8
}

type NeighborInfo struct {
	ExtAddress       uint64
	Rloc16           uint16
	Age              uint32
	AverageRssi      int8
	LastRssi         int8
	LinkQualityIn    uint8
	FrameErrorRate   uint16
	MessageErrorRate uint16
	Version          uint16
	IsChild          bool
	Mode             types.LinkMode
}

type SrpServerData struct {
	State              string
	AddressMode        string
	Hosts              uint32
	Services           uint32
	DeletedHosts       uint32
	DeletedServices    uint32
	ResponseSuccess    uint32
	ResponseRefused    uint32
	ResponseFormat     uint32
	ResponseNameExists uint32
}

type BorderRoutingCounters struct {
	InboundUnicastPackets    uint64
	InboundUnicastBytes      uint64
	InboundMulticastPackets  uint64
	InboundMulticastBytes    uint64
	OutboundUnicastPackets   uint64
	OutboundUnicastBytes     uint64
	OutboundMulticastPackets uint64
	OutboundMulticastBytes   uint64
	RaRx                     uint32
	RaTxSuccess              uint32
	RaTxFailure              uint32
	RsRx                     uint32
	RsTxSuccess              uint32
	RsTxFailure              uint32
}

type MdnsCounters struct {
	SuccessResponses        uint32
	NotFoundResponses       uint32
	InvalidArgsResponses    uint32
	DuplicatedResponses     uint32
	NotImplementedResponses uint32
	UnknownErrorResponses   uint32
}

// TelemetryData is a snapshot of the counters and topology data of the stack.
type TelemetryData struct {
	Role     types.OtDeviceRole
	LinkMode types.LinkMode
	Channel  int
	TxPower  int8
	// CcaFailureRate is the CCA failure rate in units of 1/0xffff.
	CcaFailureRate uint16
	ExtAddress     uint64
	Rloc16         uint16
	RouterId       uint8
	LeaderData     LeaderData
	Mac            MacCounters
	Ip             IpCounters
	Neighbors      []NeighborInfo
	ChildTableSize int
	NetworkDataLen int
	Srp            SrpServerData
	BorderRouting  BorderRoutingCounters
	Mdns           MdnsCounters
	Nat64Enabled   bool
	Version        string
}
