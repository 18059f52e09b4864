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

package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	s, err := Open(filepath.Join(t.TempDir(), "settings.db"), DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreGetSet(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "stack/sim/active_dataset", []byte{1, 2, 3}))
	v, ok, err := s.Get(ctx, "stack/sim/active_dataset")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, v)

	require.NoError(t, s.Set(ctx, "stack/sim/active_dataset", []byte{4}))
	v, _, _ = s.Get(ctx, "stack/sim/active_dataset")
	assert.Equal(t, []byte{4}, v)

	require.NoError(t, s.SetString(ctx, "daemon/country_code", "US"))
	cc, ok, err := s.GetString(ctx, "daemon/country_code")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "US", cc)

	require.NoError(t, s.Set(ctx, "empty", nil))
	v, ok, _ = s.Get(ctx, "empty")
	assert.True(t, ok)
	assert.Empty(t, v)

	require.NoError(t, s.Delete(ctx, "empty"))
	_, ok, _ = s.Get(ctx, "empty")
	assert.False(t, ok)
}

func TestNamespaceWipe(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	ns := s.Namespace("stack/sim")

	require.NoError(t, ns.Set(ctx, "active_dataset", []byte{1}))
	require.NoError(t, ns.Set(ctx, "pending_dataset", []byte{2}))
	require.NoError(t, s.SetString(ctx, "stack/simulated", "other"))
	require.NoError(t, s.SetString(ctx, "daemon/country_code", "DE"))

	keys, err := s.Keys(ctx, "stack/")
	require.NoError(t, err)
	assert.Equal(t, []string{"stack/sim/active_dataset", "stack/sim/pending_dataset", "stack/simulated"}, keys)

	require.NoError(t, ns.Wipe(ctx))
	keys, err = s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"daemon/country_code", "stack/simulated"}, keys)
}

func TestReopenKeepsValues(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.db")
	s, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, s.SetString(ctx, "k", "v"))
	require.NoError(t, s.Close())

	s, err = Open(path, DefaultConfig())
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.GetString(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}
