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
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestOtDeviceRole(t *testing.T) {
	assert.False(t, OtDeviceRoleDisabled.IsAttached())
	assert.False(t, OtDeviceRoleDetached.IsAttached())
	assert.True(t, OtDeviceRoleChild.IsAttached())
	assert.True(t, OtDeviceRoleRouter.IsAttached())
	assert.True(t, OtDeviceRoleLeader.IsAttached())

	for _, r := range []OtDeviceRole{OtDeviceRoleDisabled, OtDeviceRoleDetached, OtDeviceRoleChild,
		OtDeviceRoleRouter, OtDeviceRoleLeader} {
		parsed, ok := ParseOtDeviceRole(r.String() + "\r\n")
		assert.True(t, ok)
		assert.Equal(t, r, parsed)
	}
	_, ok := ParseOtDeviceRole("unknown")
	assert.False(t, ok)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, OT_ERROR_NONE, ErrorCode(nil))
	assert.Equal(t, OT_ERROR_FAILED, ErrorCode(errors.New("plain")))

	err := NewError(OT_ERROR_BUSY, "Thread is disabling")
	assert.Equal(t, OT_ERROR_BUSY, ErrorCode(err))
	assert.Equal(t, "Busy: Thread is disabling", err.Error())
	assert.Equal(t, "Thread is disabling", ErrorMessage(err))

	wrapped := errors.Wrap(err, "join")
	assert.Equal(t, OT_ERROR_BUSY, ErrorCode(wrapped))
	assert.Equal(t, "join: Busy: Thread is disabling", ErrorMessage(wrapped))

	assert.Equal(t, "ThreadDisabled", OT_ERROR_THREAD_DISABLED.String())
	assert.Equal(t, "UnknownErrorType(99)", OtError(99).String())
}

func TestParseCliError(t *testing.T) {
	assert.Nil(t, ParseCliError("Done"))
	err := ParseCliError("Error 13: InvalidState")
	assert.Equal(t, OT_ERROR_INVALID_STATE, ErrorCode(err))
	assert.Equal(t, "InvalidState", ErrorMessage(err))
}

func TestLinkMode(t *testing.T) {
	assert.Equal(t, RouterLinkMode(), ParseLinkMode("rdn"))
	assert.Equal(t, "rdn", RouterLinkMode().String())
	assert.Equal(t, "-", LinkMode{}.String())
	assert.Equal(t, "n", ParseLinkMode("n").String())
}

func TestChangedFlags(t *testing.T) {
	flags := OT_CHANGED_THREAD_ROLE | OT_CHANGED_ACTIVE_DATASET
	assert.True(t, flags.Has(OT_CHANGED_THREAD_ROLE))
	assert.True(t, flags.Has(OT_CHANGED_ACTIVE_DATASET|OT_CHANGED_PENDING_DATASET))
	assert.False(t, flags.Has(OT_CHANGED_PENDING_DATASET))
	assert.True(t, OT_CHANGED_ALL.Has(OT_CHANGED_PARENT_LINK_QUALITY))
}

func TestOtDaemonStateClone(t *testing.T) {
	s := OtDaemonState{
		DeviceRole:        OtDeviceRoleLeader,
		ActiveDatasetTlvs: []byte{1, 2, 3},
	}
	c := s.Clone()
	s.ActiveDatasetTlvs[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, c.ActiveDatasetTlvs)
	assert.Nil(t, c.PendingDatasetTlvs)
	assert.Equal(t, OtDeviceRoleLeader, c.DeviceRole)
}
