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
	"bytes"

	"github.com/pkg/errors"

	"github.com/openthread/ot-daemon/types"
)

const maxTxtEntryLength = 255

var ErrTxtParse = errors.New("malformed TXT data")

// DecodeTxtData decodes DNS-SD TXT data, a sequence of length-prefixed "key=value" strings (RFC 6763
// section 6). An entry without '=' is a boolean attribute and decodes with a nil value. Empty entries and
// entries with an empty key are skipped.
func DecodeTxtData(data []byte) ([]types.DnsTxtAttribute, error) {
	var entries []types.DnsTxtAttribute
	for len(data) > 0 {
		n := int(data[0])
		if 1+n > len(data) {
			return nil, errors.Wrapf(ErrTxtParse, "entry length %d exceeds remaining %d bytes", n, len(data)-1)
		}
		entry := data[1 : 1+n]
		data = data[1+n:]

		if len(entry) == 0 {
			continue
		}
		sep := bytes.IndexByte(entry, '=')
		switch {
		case sep == 0:
			continue
		case sep < 0:
			entries = append(entries, types.DnsTxtAttribute{Name: string(entry)})
		default:
			entries = append(entries, types.DnsTxtAttribute{
				Name:  string(entry[:sep]),
				Value: bytes.Clone(entry[sep+1:]),
			})
		}
	}
	return entries, nil
}

// EncodeTxtData encodes entries as DNS-SD TXT data. An entry with a nil value is encoded as a boolean
// attribute.
func EncodeTxtData(entries []types.DnsTxtAttribute) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range entries {
		if e.Name == "" {
			return nil, errors.Errorf("TXT entry with empty key")
		}
		n := len(e.Name)
		if e.Value != nil {
			n += 1 + len(e.Value)
		}
		if n > maxTxtEntryLength {
			return nil, errors.Errorf("TXT entry %s is too long: %d", e.Name, n)
		}
		buf.WriteByte(byte(n))
		buf.WriteString(e.Name)
		if e.Value != nil {
			buf.WriteByte('=')
			buf.Write(e.Value)
		}
	}
	return buf.Bytes(), nil
}
