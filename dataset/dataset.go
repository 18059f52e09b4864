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

// Package dataset parses Thread Operational Dataset TLVs (MeshCoP TLVs, Thread 1.3 section 8.10).
package dataset

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

type TlvType = uint8

const (
	TlvChannel            TlvType = 0
	TlvPanId              TlvType = 1
	TlvExtPanId           TlvType = 2
	TlvNetworkName        TlvType = 3
	TlvPskc               TlvType = 4
	TlvNetworkKey         TlvType = 5
	TlvNetworkKeySequence TlvType = 6
	TlvMeshLocalPrefix    TlvType = 7
	TlvSecurityPolicy     TlvType = 12
	TlvActiveTimestamp    TlvType = 14
	TlvPendingTimestamp   TlvType = 51
	TlvDelayTimer         TlvType = 52
	TlvChannelMask        TlvType = 53
	TlvWakeupChannel      TlvType = 74

	// A length byte of 0xff introduces an extended 16-bit length.
	extendedLength = 0xff

	// MaxLength is the maximum size of a dataset TLV blob (OT_OPERATIONAL_DATASET_MAX_LENGTH).
	MaxLength = 254
)

var tlvNames = map[TlvType]string{
	TlvChannel:            "Channel",
	TlvPanId:              "PanId",
	TlvExtPanId:           "ExtPanId",
	TlvNetworkName:        "NetworkName",
	TlvPskc:               "Pskc",
	TlvNetworkKey:         "NetworkKey",
	TlvNetworkKeySequence: "NetworkKeySequence",
	TlvMeshLocalPrefix:    "MeshLocalPrefix",
	TlvSecurityPolicy:     "SecurityPolicy",
	TlvActiveTimestamp:    "ActiveTimestamp",
	TlvPendingTimestamp:   "PendingTimestamp",
	TlvDelayTimer:         "DelayTimer",
	TlvChannelMask:        "ChannelMask",
	TlvWakeupChannel:      "WakeupChannel",
}

// Tlv is a single Type-Length-Value element.
type Tlv struct {
	Type  TlvType
	Value []byte
}

func (tlv Tlv) String() string {
	name, ok := tlvNames[tlv.Type]
	if !ok {
		name = fmt.Sprintf("Tlv(%d)", tlv.Type)
	}
	return fmt.Sprintf("%s=%s", name, hex.EncodeToString(tlv.Value))
}

// Dataset is a parsed Operational Dataset. TLVs are kept in their encoded order.
type Dataset struct {
	Tlvs []Tlv
}

// Parse dissects a dataset TLV blob. Duplicate TLV types are rejected.
func Parse(data []byte) (*Dataset, error) {
	ds := &Dataset{}
	seen := map[TlvType]struct{}{}
	for pos := 0; pos < len(data); {
		if pos+2 > len(data) {
			return nil, errors.Errorf("truncated TLV header at offset %d", pos)
		}
		tlvType := data[pos]
		length := int(data[pos+1])
		pos += 2
		if length == extendedLength {
			if pos+2 > len(data) {
				return nil, errors.Errorf("truncated extended TLV length at offset %d", pos)
			}
			length = int(binary.BigEndian.Uint16(data[pos:]))
			pos += 2
		}
		if pos+length > len(data) {
			return nil, errors.Errorf("TLV %d length %d exceeds data at offset %d", tlvType, length, pos)
		}
		if _, dup := seen[tlvType]; dup {
			return nil, errors.Errorf("duplicate TLV %d", tlvType)
		}
		seen[tlvType] = struct{}{}
		ds.Tlvs = append(ds.Tlvs, Tlv{Type: tlvType, Value: bytes.Clone(data[pos : pos+length])})
		pos += length
	}
	return ds, nil
}

// ParseHex parses a hex-encoded dataset as printed by 'dataset active -x'.
func ParseHex(s string) (*Dataset, error) {
	data, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrap(err, "invalid dataset hex")
	}
	return Parse(data)
}

// Bytes encodes the dataset in its TLV order.
func (ds *Dataset) Bytes() []byte {
	var b []byte
	for _, tlv := range ds.Tlvs {
		b = append(b, tlv.Type)
		if len(tlv.Value) >= extendedLength {
			b = append(b, extendedLength, byte(len(tlv.Value)>>8), byte(len(tlv.Value)))
		} else {
			b = append(b, byte(len(tlv.Value)))
		}
		b = append(b, tlv.Value...)
	}
	return b
}

// Normalized returns a copy with TLVs sorted by type.
func (ds *Dataset) Normalized() *Dataset {
	n := &Dataset{Tlvs: append([]Tlv(nil), ds.Tlvs...)}
	sort.Slice(n.Tlvs, func(i, j int) bool {
		return n.Tlvs[i].Type < n.Tlvs[j].Type
	})
	return n
}

func (ds *Dataset) Get(t TlvType) ([]byte, bool) {
	for _, tlv := range ds.Tlvs {
		if tlv.Type == t {
			return tlv.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of TLV t, or appends it if absent.
func (ds *Dataset) Set(t TlvType, value []byte) {
	for i := range ds.Tlvs {
		if ds.Tlvs[i].Type == t {
			ds.Tlvs[i].Value = bytes.Clone(value)
			return
		}
	}
	ds.Tlvs = append(ds.Tlvs, Tlv{Type: t, Value: bytes.Clone(value)})
}

// Channel returns the channel of the Channel TLV (page byte followed by 16-bit channel).
func (ds *Dataset) Channel() (int, bool) {
	v, ok := ds.Get(TlvChannel)
	if !ok || len(v) != 3 {
		return 0, false
	}
	return int(binary.BigEndian.Uint16(v[1:])), true
}

func (ds *Dataset) PanId() (uint16, bool) {
	v, ok := ds.Get(TlvPanId)
	if !ok || len(v) != 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(v), true
}

func (ds *Dataset) ExtPanId() (uint64, bool) {
	v, ok := ds.Get(TlvExtPanId)
	if !ok || len(v) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(v), true
}

func (ds *Dataset) NetworkName() (string, bool) {
	v, ok := ds.Get(TlvNetworkName)
	if !ok {
		return "", false
	}
	return string(v), true
}

// ActiveTimestamp returns the seconds part of the Active Timestamp TLV.
func (ds *Dataset) ActiveTimestamp() (uint64, bool) {
	v, ok := ds.Get(TlvActiveTimestamp)
	if !ok || len(v) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(v) >> 16, true
}

// DelayTimer returns the delay timer of a pending dataset in milliseconds.
func (ds *Dataset) DelayTimer() (uint32, bool) {
	v, ok := ds.Get(TlvDelayTimer)
	if !ok || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

func (ds *Dataset) String() string {
	parts := make([]string, 0, len(ds.Tlvs))
	for _, tlv := range ds.Tlvs {
		parts = append(parts, tlv.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Equal reports whether two encoded datasets carry the same TLVs, regardless of TLV order. Encodings that
// fail to parse are compared byte-wise.
func Equal(a, b []byte) bool {
	da, errA := Parse(a)
	db, errB := Parse(b)
	if errA != nil || errB != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(da.Normalized().Bytes(), db.Normalized().Bytes())
}

// IsEmpty returns true if the encoded dataset carries no TLVs.
func IsEmpty(tlvs []byte) bool {
	return len(tlvs) == 0
}
