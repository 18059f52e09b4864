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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openthread/ot-daemon/types"
)

func TestDecodeTxtData(t *testing.T) {
	data := []byte("\x04rv=1\x00\x04flag\x02=x\x06vn=Foo")
	entries, err := DecodeTxtData(data)
	require.NoError(t, err)
	assert.Equal(t, []types.DnsTxtAttribute{
		{Name: "rv", Value: []byte("1")},
		{Name: "flag"},
		{Name: "vn", Value: []byte("Foo")},
	}, entries)

	_, err = DecodeTxtData([]byte("\x05rv=1"))
	assert.ErrorIs(t, err, ErrTxtParse)

	entries, err = DecodeTxtData(nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEncodeTxtData(t *testing.T) {
	data, err := EncodeTxtData([]types.DnsTxtAttribute{
		{Name: "rv", Value: []byte("1")},
		{Name: "flag"},
		{Name: "vo", Value: []byte{0xaa, 0xbb, 0xcc}},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("\x04rv=1\x04flag\x06vo=\xaa\xbb\xcc"), data)

	_, err = EncodeTxtData([]types.DnsTxtAttribute{{Value: []byte("x")}})
	assert.Error(t, err)

	_, err = EncodeTxtData([]types.DnsTxtAttribute{{Name: "k", Value: make([]byte, 254)}})
	assert.Error(t, err)
}
