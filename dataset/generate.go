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
	"encoding/binary"
	"fmt"
	"math/rand"
)

// Generate creates a new random active dataset, like 'dataset init new' of the ot-cli.
func Generate(r *rand.Rand, channel int) *Dataset {
	ds := &Dataset{}

	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, 1<<16)
	ds.Set(TlvActiveTimestamp, ts)

	ds.Set(TlvChannel, []byte{0, byte(channel >> 8), byte(channel)})
	ds.Set(TlvChannelMask, []byte{0, 4, 0x00, 0x1f, 0xff, 0xe0})

	panId := uint16(r.Intn(0xfffe))
	ds.Set(TlvPanId, []byte{byte(panId >> 8), byte(panId)})

	ds.Set(TlvExtPanId, randomBytes(r, 8))
	ds.Set(TlvNetworkName, []byte(fmt.Sprintf("OpenThread-%04x", panId)))
	ds.Set(TlvNetworkKey, randomBytes(r, 16))

	mlp := randomBytes(r, 8)
	mlp[0] = 0xfd
	ds.Set(TlvMeshLocalPrefix, mlp)

	ds.Set(TlvPskc, randomBytes(r, 16))
	ds.Set(TlvSecurityPolicy, []byte{0x02, 0xa0, 0xf7, 0xf8})
	return ds
}

func randomBytes(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	_, _ = r.Read(b)
	return b
}
