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

package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevelString(t *testing.T) {
	for _, lv := range []Level{MicroLevel, TraceLevel, DebugLevel, InfoLevel, NoteLevel, WarnLevel, ErrorLevel,
		OffLevel} {
		parsed, err := ParseLevelString(GetLevelString(lv))
		assert.Nil(t, err)
		assert.Equal(t, lv, parsed)
	}
	lv, err := ParseLevelString("bogus")
	assert.NotNil(t, err)
	assert.Equal(t, DefaultLevel, lv)
}

func TestParseOtLogLine(t *testing.T) {
	ok, lv := ParseOtLogLine("00:00:02.233 [N] Mle-----------: Role detached -> leader")
	assert.True(t, ok)
	assert.Equal(t, NoteLevel, lv)

	ok, lv = ParseOtLogLine("[WARN]-MLE-----: Failed to process")
	assert.True(t, ok)
	assert.Equal(t, WarnLevel, lv)

	ok, _ = ParseOtLogLine("Done")
	assert.False(t, ok)

	ll, ok := ParseOtLog("00:00:02.233 [N] Mle-----------: Role detached -> leader")
	assert.True(t, ok)
	assert.Equal(t, OtLogLine{Level: NoteLevel, Module: "Mle", Message: "Role detached -> leader"}, ll)

	ll, ok = ParseOtLog("[WARN]-MLE-----: Failed to process")
	assert.True(t, ok)
	assert.Equal(t, OtLogLine{Level: WarnLevel, Module: "MLE", Message: "Failed to process"}, ll)

	ll, ok = ParseOtLog("00:00:03.000 [C] no module here")
	assert.True(t, ok)
	assert.Equal(t, ErrorLevel, ll.Level)
	assert.Equal(t, "", ll.Module)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "crit", ErrorLevel.String())
	assert.Equal(t, "unknown", Level(42).String())
	assert.Panics(t, func() { GetLevelString(Level(42)) })
}

func TestSetGetLevel(t *testing.T) {
	old := GetLevel()
	defer SetLevel(old)

	SetLevel(WarnLevel)
	assert.Equal(t, WarnLevel, GetLevel())
	Debugf("not logged at warn level: %d", 1)
	Tagged("Binder").Debugf("also not logged")
}

func TestTaggedModule(t *testing.T) {
	assert.Equal(t, "Binder---------", Tagged("Binder").module)
	assert.Equal(t, "VeryLongModuleN", Tagged("VeryLongModuleName").module)
}

func TestConfigure(t *testing.T) {
	defer func() {
		require.NoError(t, Configure(DefaultOptions()))
	}()
	old := GetLevel()
	defer SetLevel(old)
	SetLevel(InfoLevel)

	fn := filepath.Join(t.TempDir(), "daemon.log")
	require.NoError(t, Configure(Options{Encoding: EncodingJson, Outputs: []string{fn}}))
	Tagged("Binder").Infof("client registered: %d", 7)
	Debugf("below level")
	Sync()

	data, err := os.ReadFile(fn)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"module":"Binder"`)
	assert.Contains(t, string(data), `"message":"client registered: 7"`)
	assert.NotContains(t, string(data), "below level")

	assert.Error(t, Configure(Options{Encoding: "xml"}))
}

func TestStackLoggerFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "stack.log")
	sl := NewStackLogger("ot-cli", fn)
	require.True(t, sl.IsFileEnabled())
	sl.SetDisplayLevel(OffLevel)
	sl.LogLine("00:00:01.000 [I] Mle-----------: Attach attempt 1")
	sl.LogLine("00:00:01.000 [D] Mac-----------: Sleep")
	sl.Flush()
	sl.SetFileLevel(InfoLevel)
	sl.LogLine("00:00:01.000 [D] Mac-----------: Not written")
	sl.Close()
	assert.False(t, sl.IsFileEnabled())

	data, err := os.ReadFile(fn)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Attach attempt 1")
	assert.Contains(t, string(data), "Sleep")
	assert.NotContains(t, string(data), "Not written")
}
