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

package dataset

import (
	"encoding/hex"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Active dataset as printed by 'dataset active -x' on an ot-cli-ftd node.
const activeDatasetHex = "0e080000000000010000000300000f35060004001fffe0020811111111222222220708fd" +
	"b8d0e2a3a1e2a4051000112233445566778899aabbccddeeff030f4f70656e5468726561642d3961" +
	"3232010212340410d0e5ff5ad8c0e8b3d04e45e5add9c3720c0402a0f7f8"

func TestParse(t *testing.T) {
	ds, err := ParseHex(activeDatasetHex)
	require.NoError(t, err)

	ch, ok := ds.Channel()
	assert.True(t, ok)
	assert.Equal(t, 15, ch)

	panId, ok := ds.PanId()
	assert.True(t, ok)
	assert.Equal(t, uint16(0x1234), panId)

	xpan, ok := ds.ExtPanId()
	assert.True(t, ok)
	assert.Equal(t, uint64(0x1111111122222222), xpan)

	name, ok := ds.NetworkName()
	assert.True(t, ok)
	assert.Equal(t, "OpenThread-9a22", name)

	ts, ok := ds.ActiveTimestamp()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), ts)

	assert.Equal(t, activeDatasetHex, hex.EncodeToString(ds.Bytes()))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte{0x00})
	assert.Error(t, err)
	_, err = Parse([]byte{0x00, 0x03, 0x00})
	assert.Error(t, err)
	_, err = Parse([]byte{0x01, 0x02, 0x12, 0x34, 0x01, 0x02, 0x12, 0x34})
	assert.Error(t, err, "duplicate TLV")
	_, err = ParseHex("zz")
	assert.Error(t, err)

	ds, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, ds.Tlvs)
}

func TestEqualIgnoresTlvOrder(t *testing.T) {
	ds, err := ParseHex(activeDatasetHex)
	require.NoError(t, err)

	reversed := &Dataset{}
	for i := len(ds.Tlvs) - 1; i >= 0; i-- {
		reversed.Tlvs = append(reversed.Tlvs, ds.Tlvs[i])
	}
	assert.NotEqual(t, ds.Bytes(), reversed.Bytes())
	assert.True(t, Equal(ds.Bytes(), reversed.Bytes()))

	changed, err := Parse(reversed.Bytes())
	require.NoError(t, err)
	changed.Set(TlvPanId, []byte{0xab, 0xcd})
	assert.False(t, Equal(ds.Bytes(), changed.Bytes()))

	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(ds.Bytes(), nil))
	assert.False(t, Equal([]byte{0x00}, []byte{0x01}))
}

func TestExtendedLength(t *testing.T) {
	ds := &Dataset{}
	long := make([]byte, 300)
	ds.Set(TlvNetworkName, long)
	parsed, err := Parse(ds.Bytes())
	require.NoError(t, err)
	v, ok := parsed.Get(TlvNetworkName)
	assert.True(t, ok)
	assert.Len(t, v, 300)
}

func TestGenerate(t *testing.T) {
	ds := Generate(rand.New(rand.NewSource(1)), 20)
	parsed, err := Parse(ds.Bytes())
	require.NoError(t, err)
	ch, ok := parsed.Channel()
	assert.True(t, ok)
	assert.Equal(t, 20, ch)
	assert.LessOrEqual(t, len(ds.Bytes()), MaxLength)
	assert.Contains(t, parsed.String(), "Channel=000014")
}
